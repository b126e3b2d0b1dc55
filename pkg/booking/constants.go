package booking

const (
	operationEnsureAccount = "ensure_account"
	operationGrantLessons  = "grant_lessons"
	operationPublish       = "publish_availability"
	operationSchedule      = "schedule"
	operationApprove       = "approve"
	operationConfirm       = "confirm"
	operationCancel        = "cancel"
	operationNotify        = "notify"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	subjectNewLessonRequest = "New Lesson Request"
	bodyNewLessonRequest    = "You have a new lesson request."
	subjectLessonApproved   = "Lesson Approved"
	bodyLessonApproved      = "Your lesson has been approved."
	subjectLessonCanceled   = "Lesson Canceled"
	bodyLessonCanceled      = "A lesson scheduled for %s has been canceled."
)
