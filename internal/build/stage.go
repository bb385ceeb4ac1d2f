package build

import (
	"errors"
	"fmt"
)

// Stage is a step of the build pipeline. Stages complete strictly in order.
type Stage int

const (
	StageNone Stage = iota
	StageMetadataLoaded
	StageAssetsIndexed
	StageNavPlaceholderResolved
	StagePackageDocumentBuilt
	StageNavigationControlBuilt
	StageFontsSubset
	StageArchived
	StageConverted
	StageReported
)

var stageNames = [...]string{
	StageNone:                   "None",
	StageMetadataLoaded:         "MetadataLoaded",
	StageAssetsIndexed:          "AssetsIndexed",
	StageNavPlaceholderResolved: "NavPlaceholderResolved",
	StagePackageDocumentBuilt:   "PackageDocumentBuilt",
	StageNavigationControlBuilt: "NavigationControlBuilt",
	StageFontsSubset:            "FontsSubset",
	StageArchived:               "Archived",
	StageConverted:              "Converted",
	StageReported:               "Reported",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// ErrStageOrder is returned when a stage is completed out of order.
var ErrStageOrder = errors.New("pipeline stage out of order")

// stageTracker records the last completed stage.
type stageTracker struct {
	current Stage
}

// advance marks next as completed. next must directly follow the current stage.
func (t *stageTracker) advance(next Stage) error {
	if next != t.current+1 {
		return fmt.Errorf("%w: cannot complete %s after %s", ErrStageOrder, next, t.current)
	}
	t.current = next
	return nil
}
