package recognition

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	exif "github.com/dsoprea/go-exif/v3"
)

type imageInfo struct {
	Format string
	Width  int
	Height int
	GPS    bool
	Serial bool
}

func (i imageInfo) shortSide() int {
	if i.Width < i.Height {
		return i.Width
	}
	return i.Height
}

// readHeader decodes the format and dimensions without touching pixel data.
func readHeader(data []byte) (imageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return imageInfo{}, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return imageInfo{}, errors.New("image has no pixels")
	}
	return imageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// inspectImage reads the image header and EXIF block without decoding pixels.
func inspectImage(data []byte) (imageInfo, error) {
	info, err := readHeader(data)
	if err != nil {
		return imageInfo{}, err
	}
	info.GPS, info.Serial = exifFlags(data)
	return info, nil
}

func exifFlags(data []byte) (gps, serial bool) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return false, false
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return false, false
	}

	for _, entry := range entries {
		switch entry.TagName {
		case "GPSLatitude", "GPSLongitude", "GPSLatitudeRef", "GPSLongitudeRef":
			gps = true
		case "SerialNumber", "BodySerialNumber", "CameraSerialNumber", "LensSerialNumber":
			serial = true
		}
	}
	return gps, serial
}
