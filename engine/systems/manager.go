package systems

import (
	"github.com/spaghettifunk/anima-scan/engine/assets/loaders"
	"github.com/spaghettifunk/anima-scan/engine/core"
	"github.com/spaghettifunk/anima-scan/engine/platform"
)

type SystemManagerConfig struct {
	RecordingsDir string
	Workers       int
	JobQueueSize  int
	// PreviewSize of 0 disables thumbnails.
	PreviewSize int
}

type SystemManager struct {
	JobSystem           *JobSystem
	GeometryConverter   *GeometryConverter
	MeshAnchorTracker   *MeshAnchorTracker
	SceneAggregator     *SceneAggregator
	SceneSerializer     *SceneSerializer
	PreviewRenderer     *PreviewRenderer
	RecordingController *RecordingController
	RecordingCatalog    *RecordingCatalog
}

func NewSystemManager(config SystemManagerConfig, p *platform.Platform, dispatcher *core.Dispatcher, events *core.EventSystem) (*SystemManager, error) {
	js, err := NewJobSystem(config.Workers, config.JobQueueSize)
	if err != nil {
		return nil, err
	}

	gc := NewGeometryConverter()
	mt := NewMeshAnchorTracker(gc)
	sa := NewSceneAggregator(mt)
	ss := NewSceneSerializer(config.RecordingsDir, &loaders.BinaryLoader{})

	var pr *PreviewRenderer
	if config.PreviewSize > 0 {
		pr = NewPreviewRenderer(config.PreviewSize)
	}

	return &SystemManager{
		JobSystem:           js,
		GeometryConverter:   gc,
		MeshAnchorTracker:   mt,
		SceneAggregator:     sa,
		SceneSerializer:     ss,
		PreviewRenderer:     pr,
		RecordingController: NewRecordingController(p, mt, sa, ss, pr, events),
		RecordingCatalog:    NewRecordingCatalog(ss, js, dispatcher),
	}, nil
}

// Shutdown stops a running capture without saving it and drains the job system.
func (sm *SystemManager) Shutdown() error {
	sm.RecordingController.CancelRecording()
	sm.MeshAnchorTracker.Reset()
	sm.SceneAggregator.Reset()
	if err := sm.JobSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}
