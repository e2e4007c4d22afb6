// Package asset picks the best stored file variant of an asset for a
// request: by locale, by raster size, and thumbnail or original.
package asset

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocale is used when an asset lists no locales at all.
const DefaultLocale = "en_US"

// ErrInvalidOperation is returned for image requests on non-image assets.
var ErrInvalidOperation = errors.New("invalid operation")

// ErrNoFiles is returned when an asset has no file variants.
var ErrNoFiles = errors.New("asset has no files")

// Request describes the variant a caller wants.
type Request struct {
	// Image restricts selection to raster originals.
	Image bool

	// Thumb selects generated thumbnails instead of originals.
	Thumb bool

	// Size is the minimum edge length in pixels. Zero means largest.
	Size int

	// Locale is a locale or Accept-Language list, e.g. "de-DE,de;q=0.9".
	Locale string
}

// Negotiate returns the URL of the file that best fits req.
func Negotiate(assetType string, files []File, req Request) (string, error) {
	if (req.Image || req.Thumb) && assetType != TypeImage {
		return "", fmt.Errorf("%w: asset of type %q has no image variants",
			ErrInvalidOperation, assetType)
	}
	if len(files) == 0 {
		return "", ErrNoFiles
	}

	candidates := files
	if req.Locale != "" {
		if best, ok := BestLocale(req.Locale, Locales(files)); ok {
			localized := slices.DeleteFunc(slices.Clone(files), func(f File) bool {
				return f.Locale != best
			})
			if len(localized) > 0 {
				candidates = localized
			}
		}
	}

	if !req.Image && !req.Thumb && assetType != TypeImage {
		return candidates[0].URL, nil
	}

	raster := slices.DeleteFunc(slices.Clone(candidates), func(f File) bool {
		return f.Resolution == nil
	})
	if len(raster) == 0 {
		if i := slices.IndexFunc(files, func(f File) bool { return !f.IsThumb() }); i >= 0 {
			return files[i].URL, nil
		}
		return files[0].URL, nil
	}

	slices.SortStableFunc(raster, func(a, b File) int {
		return b.Resolution.longest() - a.Resolution.longest()
	})

	partition := slices.DeleteFunc(slices.Clone(raster), func(f File) bool {
		return f.IsThumb() != req.Thumb
	})
	if len(partition) == 0 {
		partition = raster
	}

	largest := partition[0]
	if req.Size <= 0 {
		return largest.URL, nil
	}

	fitting := slices.DeleteFunc(slices.Clone(partition), func(f File) bool {
		return f.Resolution.Height < req.Size && f.Resolution.Width < req.Size
	})
	if len(fitting) == 0 {
		return largest.URL, nil
	}
	return fitting[len(fitting)-1].URL, nil
}

// Locales lists the distinct non-empty locales of files in order of first
// appearance.
func Locales(files []File) []string {
	var out []string
	for _, f := range files {
		if f.Locale != "" && !slices.Contains(out, f.Locale) {
			out = append(out, f.Locale)
		}
	}
	return out
}

var charsetSuffix = regexp.MustCompile(`\.[^.]*$`)

// BestLocale matches requested against available the way Accept-Language
// negotiation does: an exact language_COUNTRY match wins, then a match on
// language alone. The boolean is false when nothing matched, in which case
// the first available locale (or DefaultLocale) is returned.
func BestLocale(requested string, available []string) (string, bool) {
	fallback := DefaultLocale
	if len(available) > 0 {
		fallback = available[0]
	}

	supported := make([]language.Tag, len(available))
	for i, a := range available {
		supported[i] = parseLocale(a)
	}

	for _, want := range requestedTags(requested) {
		if want == language.Und {
			continue
		}
		for i, tag := range supported {
			if tag != language.Und && tag == want {
				return available[i], true
			}
		}
		wantBase, _ := want.Base()
		for i, tag := range supported {
			if tag == language.Und {
				continue
			}
			if base, _ := tag.Base(); base == wantBase {
				return available[i], true
			}
		}
	}
	return fallback, false
}

func requestedTags(requested string) []language.Tag {
	requested = strings.TrimSpace(requested)
	if strings.ContainsAny(requested, ",;") {
		tags, _, err := language.ParseAcceptLanguage(strings.ReplaceAll(requested, "_", "-"))
		if err == nil {
			return tags
		}
	}
	return []language.Tag{parseLocale(requested)}
}

func parseLocale(s string) language.Tag {
	s = charsetSuffix.ReplaceAllString(strings.TrimSpace(s), "")
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return language.Und
	}
	return tag
}

func containsThumb(u string) bool {
	return strings.Contains(u, "_thumb")
}
