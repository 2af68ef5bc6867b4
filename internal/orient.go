package internal

import (
	"context"

	"github.com/disintegration/imaging"
)

// ImagingOrienter applies the EXIF orientation tag to the pixels.
type ImagingOrienter struct {
	Quality int
}

func (o ImagingOrienter) Orient(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return err
	}

	quality := o.Quality
	if quality <= 0 {
		quality = 95
	}
	return imaging.Save(img, dst, imaging.JPEGQuality(quality))
}
