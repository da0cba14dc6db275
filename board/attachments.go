// goban/board/attachments.go
package board

import (
	"bytes"
	"fmt"
	"time"

	"goban/config"
	"goban/models"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

var extByMIME = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// saveAttachment writes the validated upload and its thumbnail to the file
// store and returns the attachment record to persist with the post. The
// thumbnail is fitted into the configured bounding box and never upscaled.
func (s *Service) saveAttachment(boardID string, up *validatedUpload, now time.Time) (*models.Attachment, error) {
	img, err := imaging.Decode(bytes.NewReader(up.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, reject(RejectUpload, "File is not a valid image.")
	}

	ext := extByMIME[up.MIME]
	base := fmt.Sprintf("%d_%s%s", now.UnixNano(), uuid.NewString()[:8], ext)

	srcPath, err := s.files.Save(boardID+"/src/"+base, up.Data, up.MIME)
	if err != nil {
		return nil, wrapStorage(err)
	}

	thumb := imaging.Fit(img, config.ThumbnailWidth, config.ThumbnailHeight, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, wrapStorage(err)
	}
	thumbPath, err := s.files.Save(boardID+"/thumb/"+base+".jpg", buf.Bytes(), "image/jpeg")
	if err != nil {
		return nil, wrapStorage(err)
	}

	bounds := thumb.Bounds()
	return &models.Attachment{
		OriginalName: up.Name,
		Path:         srcPath,
		Hash:         up.Hash,
		Size:         int64(len(up.Data)),
		Width:        up.Width,
		Height:       up.Height,
		ThumbPath:    thumbPath,
		ThumbWidth:   bounds.Dx(),
		ThumbHeight:  bounds.Dy(),
	}, nil
}
