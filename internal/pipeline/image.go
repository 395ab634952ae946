package pipeline

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/your-org/vtrack/internal/models"
)

const snapshotJPEGQuality = 85

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropBox extracts the bbox region from img, clamped to the image bounds.
// Returns nil when the clamped region is empty or the image type does not
// support subimaging.
func cropBox(img image.Image, box models.BBox) image.Image {
	if img == nil {
		return nil
	}
	si, ok := img.(subImager)
	if !ok {
		return nil
	}
	r := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)).Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	return si.SubImage(r)
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: snapshotJPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
