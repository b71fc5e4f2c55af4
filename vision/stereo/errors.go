package stereo

import (
	"github.com/pkg/errors"

	"go.viam.com/sparsestereo/rimage/transform"
)

// Every error below ends the current Match or MatchFull call; nothing is retried. Callers
// should skip the frame.
var (
	// ErrNoKeypointsDetected is returned when either image yields no keypoints.
	ErrNoKeypointsDetected = errors.New("no keypoints detected")
	// ErrNoMatchesFound is returned when the matching strategy yields no correspondence.
	ErrNoMatchesFound = errors.New("no matches found")
	// ErrAllMatchesFiltered is returned when a filter removes every correspondence.
	ErrAllMatchesFiltered = errors.New("all matches filtered")
	// ErrInvalidGeometry reports a malformed calibration or inconsistent point arrays.
	ErrInvalidGeometry = transform.ErrInvalidGeometry
)
