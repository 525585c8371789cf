package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionProctoringRead allows viewing live sessions, alerts, evidence and feeds.
	PermissionProctoringRead Permission = "proctoring:read"

	// PermissionProctoringReview allows reviewing alerts and signing off sessions.
	PermissionProctoringReview Permission = "proctoring:review"

	// PermissionProctoringTerminate allows force-ending a student's session.
	PermissionProctoringTerminate Permission = "proctoring:terminate"

	// PermissionProctoringAssign allows assigning supervisors to exams.
	PermissionProctoringAssign Permission = "proctoring:assign"
)

