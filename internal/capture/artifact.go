package capture

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Artifact is one finished recording held in memory until it is either
// uploaded or discarded by a re-record.
type Artifact struct {
	ID         uuid.UUID
	Data       []byte
	Size       int64
	MIME       string
	RecordedAt time.Time
}

func newArtifact(data []byte, mime string) *Artifact {
	return &Artifact{
		ID:         uuid.New(),
		Data:       data,
		Size:       int64(len(data)),
		MIME:       mime,
		RecordedAt: time.Now(),
	}
}

// FileName is the name the artifact travels under in the multipart upload.
func (a *Artifact) FileName() string {
	ext := "webm"
	if a.MIME == "video/mp4" {
		ext = "mp4"
	}
	return fmt.Sprintf("audit-%s.%s", a.ID, ext)
}
