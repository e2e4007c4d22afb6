package asset

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// TypeImage is the asset type that carries raster variants.
const TypeImage = "image"

// Resolution is the pixel size of an image variant.
type Resolution struct {
	Width  int `mapstructure:"width" json:"width"`
	Height int `mapstructure:"height" json:"height"`
}

func (r Resolution) longest() int {
	return max(r.Width, r.Height)
}

// File is one stored variant of an asset.
type File struct {
	URL        string      `mapstructure:"url" json:"url"`
	Locale     string      `mapstructure:"locale" json:"locale,omitempty"`
	MimeType   string      `mapstructure:"mimetype" json:"mimetype,omitempty"`
	FileName   string      `mapstructure:"fileName" json:"fileName,omitempty"`
	Size       int64       `mapstructure:"size" json:"size,omitempty"`
	Resolution *Resolution `mapstructure:"resolution" json:"resolution"`
}

// IsThumb reports whether the file is a generated thumbnail.
func (f File) IsThumb() bool {
	return containsThumb(f.URL)
}

// DecodeFiles converts the raw "files" array of an asset document.
func DecodeFiles(raw any) ([]File, error) {
	if raw == nil {
		return nil, nil
	}
	var files []File
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &files,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode asset files: %w", err)
	}
	return files, nil
}
