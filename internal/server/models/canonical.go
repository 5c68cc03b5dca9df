package models

// CanonicalClass tells the resolver how an existing canonical record
// affects a new upload with the same content hash.
type CanonicalClass int

const (
	// ClassIgnored records are never consulted as canonical.
	ClassIgnored CanonicalClass = iota
	// ClassBlocking records win: the new upload is deduplicated against them.
	ClassBlocking
	// ClassReplaceable records hand canonical status to the new upload.
	ClassReplaceable
)

func (c CanonicalClass) String() string {
	switch c {
	case ClassBlocking:
		return "blocking"
	case ClassReplaceable:
		return "replaceable"
	default:
		return "ignored"
	}
}

// ClassifyCanonical is total over UploadStatus. Unknown statuses return
// ok=false so callers fail instead of guessing.
func ClassifyCanonical(s UploadStatus) (class CanonicalClass, ok bool) {
	switch s {
	case UploadPending, UploadUploaded:
		return ClassBlocking, true
	case UploadFailed, UploadRejected, UploadDeletedByUser:
		return ClassReplaceable, true
	case UploadDeduplicated:
		return ClassIgnored, true
	default:
		return ClassIgnored, false
	}
}
