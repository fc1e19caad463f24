package services

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

// Vision likelihood names in increasing order. Unknown values rank zero.
var likelihoodRank = map[string]int{
	"UNKNOWN":       0,
	"VERY_UNLIKELY": 1,
	"UNLIKELY":      2,
	"POSSIBLE":      3,
	"LIKELY":        4,
	"VERY_LIKELY":   5,
}

const rejectLikelihood = 4

type SafeSearchResult struct {
	Adult    string
	Violence string
	Racy     string
	Spoof    string
	Medical  string
}

// Flagged lists the blocking categories rated LIKELY or above. Spoof and
// medical are reported by Vision but never block a listing photo.
func (r *SafeSearchResult) Flagged() []string {
	if r == nil {
		return nil
	}
	var out []string
	for _, c := range []struct{ name, level string }{
		{"adult", r.Adult},
		{"violence", r.Violence},
		{"racy", r.Racy},
	} {
		if likelihoodRank[c.level] >= rejectLikelihood {
			out = append(out, c.name)
		}
	}
	return out
}

func (r *SafeSearchResult) IsUnsafe() bool {
	return len(r.Flagged()) > 0
}

// VisionDetector runs SAFE_SEARCH_DETECTION. The Vision client is created on
// first use and shared afterwards.
type VisionDetector struct {
	opts []option.ClientOption

	once sync.Once
	svc  *vision.Service
	err  error
}

func NewVisionDetector(opts ...option.ClientOption) *VisionDetector {
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithScopes(vision.CloudPlatformScope)}
	}
	return &VisionDetector{opts: opts}
}

func (d *VisionDetector) service(ctx context.Context) (*vision.Service, error) {
	d.once.Do(func() {
		// The client outlives the request that happened to create it.
		d.svc, d.err = vision.NewService(context.WithoutCancel(ctx), d.opts...)
	})
	return d.svc, d.err
}

// Detect classifies the image stored at a gs:// URI.
func (d *VisionDetector) Detect(ctx context.Context, gcsURI string) (*SafeSearchResult, error) {
	svc, err := d.service(ctx)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	resp, err := svc.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:    &vision.Image{Source: &vision.ImageSource{GcsImageUri: gcsURI}},
			Features: []*vision.Feature{{Type: "SAFE_SEARCH_DETECTION"}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Responses) == 0 {
		return &SafeSearchResult{}, nil
	}
	first := resp.Responses[0]
	if first.Error != nil && first.Error.Message != "" {
		return nil, fmt.Errorf("vision: %s", first.Error.Message)
	}
	ss := first.SafeSearchAnnotation
	if ss == nil {
		return &SafeSearchResult{}, nil
	}
	return &SafeSearchResult{
		Adult:    ss.Adult,
		Violence: ss.Violence,
		Racy:     ss.Racy,
		Spoof:    ss.Spoof,
		Medical:  ss.Medical,
	}, nil
}

var defaultDetector = NewVisionDetector()

// DetectSafeSearch classifies with Application Default Credentials.
func DetectSafeSearch(ctx context.Context, gcsURI string) (*SafeSearchResult, error) {
	return defaultDetector.Detect(ctx, gcsURI)
}
