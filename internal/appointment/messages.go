package appointment

// Notification texts. Arguments are filled in by the protocol that sends
// them; names come from the denormalized appointment fields.
const (
	msgNewRequest = "New appointment request from %s for %s at %s."
	msgConfirmed  = "Your appointment with %s on %s at %s is confirmed."
	msgCancelled  = "Your appointment with %s on %s at %s was cancelled."
	msgCompleted  = "Your session with %s on %s is marked completed."

	msgTransferToTarget        = "%s asks you to take over %s's appointment on %s at %s."
	msgTransferToRequester     = "%s proposes moving your appointment on %s at %s to %s."
	msgTransferTargetAccepted  = "%s agreed to take your appointment on %s at %s. Waiting for your answer."
	msgTransferTargetDeclined  = "%s declined the transfer of %s's appointment on %s at %s."
	msgTransferRequesterAgreed = "%s agreed to move the appointment on %s at %s to you."
	msgTransferRequesterRefuse = "%s declined the transfer of their appointment on %s at %s."
	msgTransferRevoked         = "The transfer of the appointment on %s at %s was withdrawn."
	msgTransferWithdrawn       = "The transfer request for %s's appointment on %s at %s no longer applies."
	msgTransferDoneRequester   = "Your appointment on %s at %s is now with %s."
	msgTransferDoneOld         = "%s's appointment on %s at %s was handed over to %s."
	msgTransferDoneNew         = "You now have %s's appointment on %s at %s."

	msgRescheduleProposed  = "%s proposes moving your appointment from %s %s to %s %s."
	msgRescheduleAccepted  = "%s accepted the new time %s %s."
	msgRescheduleDeclined  = "%s declined the new time; the appointment on %s at %s was cancelled."
	msgRescheduleRetracted = "%s withdrew the proposal to move your appointment on %s at %s."

	msgEntryRequested = "%s is at the entrance for the %s session (verified by %s)."
	msgEntryAllowed   = "Entry allowed for your %s session with %s. Please go in."
	msgEntryDenied    = "Entry was not allowed for your %s session with %s."
)
