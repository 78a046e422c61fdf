package artifact

import (
	"context"

	"go.uber.org/zap"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/config"
)

// MirrorStore reads and writes through a primary store and copies every write
// to the mirrors. Mirror failures are logged and never fail the write.
type MirrorStore struct {
	Store
	mirrors []Store
	log     *zap.Logger
}

func NewMirrorStore(primary Store, log *zap.Logger, mirrors ...Store) *MirrorStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &MirrorStore{Store: primary, mirrors: mirrors, log: log}
}

func (s *MirrorStore) Put(ctx context.Context, runID, name string, content []byte) error {
	if err := s.Store.Put(ctx, runID, name, content); err != nil {
		return err
	}
	for _, m := range s.mirrors {
		if err := m.Put(ctx, runID, name, content); err != nil {
			s.log.Warn("failed to mirror artifact", zap.String("run_id", runID), zap.String("name", name), zap.Error(err))
		}
	}
	return nil
}

// New builds the artifact store for cfg: the target tree, plus S3 when enabled.
func New(cfg config.Config, log *zap.Logger) (*FileStore, Store, error) {
	files := NewFileStore(cfg.TargetDir)
	if !cfg.Artifacts.S3.Enabled {
		return files, files, nil
	}
	s3, err := NewS3Store(cfg.Artifacts.S3)
	if err != nil {
		return nil, nil, err
	}
	return files, NewMirrorStore(files, log, s3), nil
}
