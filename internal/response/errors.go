package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Proctoring-specific ───────────────────────────────────────────
	ErrExamNotFound        ErrCode = "EXAM_NOT_FOUND"
	ErrStudentNotFound     ErrCode = "STUDENT_NOT_FOUND"
	ErrSessionNotFound     ErrCode = "SESSION_NOT_FOUND"
	ErrAlertNotFound       ErrCode = "ALERT_NOT_FOUND"
	ErrSessionIDTaken      ErrCode = "SESSION_ID_TAKEN"
	ErrInvalidReviewStatus ErrCode = "INVALID_REVIEW_STATUS"
	ErrInvalidSeverity     ErrCode = "INVALID_SEVERITY"
	ErrInvalidEvidence     ErrCode = "INVALID_EVIDENCE"
	ErrEvidenceTooLarge    ErrCode = "EVIDENCE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email/NISN atau kata sandi salah."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."
	case ErrSessionInvalidated:
		return "Sesi Anda telah digantikan oleh login lain. Silakan login kembali."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrPermissionDenied:
		return "Izin ditolak."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Proctoring-specific ───────────────────────────────────────────
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrStudentNotFound:
		return "Siswa tidak ditemukan."
	case ErrSessionNotFound:
		return "Sesi pengawasan tidak ditemukan."
	case ErrAlertNotFound:
		return "Peringatan tidak ditemukan."
	case ErrSessionIDTaken:
		return "ID sesi sudah digunakan oleh sesi lain."
	case ErrInvalidReviewStatus:
		return "Status tinjauan harus salah satu dari: dismissed, flagged, reviewed."
	case ErrInvalidSeverity:
		return "Tingkat keparahan harus salah satu dari: low, medium, high, critical."
	case ErrInvalidEvidence:
		return "Bukti gambar tidak valid."
	case ErrEvidenceTooLarge:
		return "Ukuran bukti gambar melebihi batas."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
