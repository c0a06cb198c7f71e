// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tracker

// Status is a step in the delivery lifecycle of a tracked message.
type Status uint8

const (
	// StatusRead means the message has been read from the store.
	StatusRead Status = iota
	// StatusBuffered means the message has been buffered for delivery.
	StatusBuffered
	// StatusSent means the message has been sent to its routed consumer.
	StatusSent
	// StatusSentToAll means all scheduled subscriber sends have executed.
	StatusSentToAll
	// StatusAcked means a consumer acknowledged the message.
	StatusAcked
	// StatusAckedByAll means every consumer the message was sent to acknowledged it.
	StatusAckedByAll
	// StatusRejectedAndBuffered means a consumer rejected the message and it
	// is waiting to be rescheduled, possibly to another consumer.
	StatusRejectedAndBuffered
	// StatusScheduledToSend means a send to one subscriber has been scheduled.
	StatusScheduledToSend
	// StatusDeliveryOK means the message passed all delivery rules.
	StatusDeliveryOK
	// StatusDeliveryReject means the message failed a delivery rule and was not sent.
	StatusDeliveryReject
	// StatusResent means the message has been sent more than once on a channel.
	StatusResent
	// StatusSlotRemoved means the slot holding the message was released.
	StatusSlotRemoved
	// StatusExpired means the message expiration time passed before delivery.
	StatusExpired
	// StatusDeadLettered means the message was routed to the dead letter channel.
	StatusDeadLettered
	// StatusPurged means the message predates the last purge of its destination.
	StatusPurged
)

var statusNames = [...]string{
	StatusRead:                "READ",
	StatusBuffered:            "BUFFERED",
	StatusSent:                "SENT",
	StatusSentToAll:           "SENT_TO_ALL",
	StatusAcked:               "ACKED",
	StatusAckedByAll:          "ACKED_BY_ALL",
	StatusRejectedAndBuffered: "REJECTED_AND_BUFFERED",
	StatusScheduledToSend:     "SCHEDULED_TO_SEND",
	StatusDeliveryOK:          "DELIVERY_OK",
	StatusDeliveryReject:      "DELIVERY_REJECT",
	StatusResent:              "RESENT",
	StatusSlotRemoved:         "SLOT_REMOVED",
	StatusExpired:             "EXPIRED",
	StatusDeadLettered:        "DLC_MESSAGE",
	StatusPurged:              "PURGED",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "UNKNOWN"
}

// Removable reports whether reaching s makes a record eligible for
// permanent removal from the registry.
func Removable(s Status) bool {
	switch s {
	case StatusAckedByAll, StatusExpired, StatusDeadLettered:
		return true
	default:
		return false
	}
}

// AnyRemovable reports whether any status of a history is removable.
func AnyRemovable(history []Status) bool {
	for _, s := range history {
		if Removable(s) {
			return true
		}
	}
	return false
}
