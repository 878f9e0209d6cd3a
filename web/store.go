package web

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/meshcloud/logging"
	"go.viam.com/meshcloud/pointcloud"
	"go.viam.com/meshcloud/sampler"
	"go.viam.com/meshcloud/spatialmath"
)

// CloudSource says where the served point cloud came from.
type CloudSource string

// The possible point cloud sources.
const (
	SourceFile     CloudSource = "file"
	SourceFallback CloudSource = "fallback"
)

const (
	fallbackSeed   = 7
	reloadDebounce = 150 * time.Millisecond
)

// CloudInfo describes the point cloud currently being served.
type CloudInfo struct {
	Source   CloudSource `json:"source"`
	Path     string      `json:"path"`
	Points   int         `json:"points"`
	Bytes    int         `json:"bytes"`
	HasColor bool        `json:"hasColor"`
	Min      [3]float64  `json:"min"`
	Max      [3]float64  `json:"max"`
	LoadedAt time.Time   `json:"loadedAt"`
	// Error is why the file could not be served, set only for the fallback source.
	Error string `json:"error,omitempty"`
}

// CloudStore holds the encoded PCD served to the page. It reads the configured file and
// substitutes a built-in demonstration cloud whenever the file is missing or malformed.
type CloudStore struct {
	path     string
	clock    clock.Clock
	logger   logging.Logger
	readFile func(path string, logger logging.Logger) ([]byte, pointcloud.PointCloud, error)

	fallbackData  []byte
	fallbackCloud pointcloud.PointCloud

	// reloadMu is held across a read and the swap that follows it so reloads apply in order.
	reloadMu sync.Mutex

	mu   sync.RWMutex
	data []byte
	info CloudInfo
}

// NewCloudStore builds the fallback cloud and performs the first load of path.
func NewCloudStore(path string, fallbackPoints int, logger logging.Logger) (*CloudStore, error) {
	return newCloudStore(path, fallbackPoints, clock.New(), logger)
}

func newCloudStore(path string, fallbackPoints int, clk clock.Clock, logger logging.Logger) (*CloudStore, error) {
	data, cloud, err := FallbackCloud(fallbackPoints, logger)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build fallback point cloud")
	}
	cs := &CloudStore{
		path:          path,
		clock:         clk,
		logger:        logger,
		readFile:      readCloudFile,
		fallbackData:  data,
		fallbackCloud: cloud,
	}
	cs.Reload()
	return cs, nil
}

// FallbackCloud samples the demonstration torus with a fixed seed and encodes it as binary PCD,
// so every run serves the same cloud.
func FallbackCloud(points int, logger logging.Logger) ([]byte, pointcloud.PointCloud, error) {
	seed := int64(fallbackSeed)
	s, err := sampler.NewSampler(sampler.Config{
		Points:        points,
		ReferenceSize: sampler.DefaultReferenceSize,
		Seed:          &seed,
		Color:         sampler.ColorHeight,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	cloud, err := s.Sample(context.Background(), spatialmath.NewTorusMesh(1, 0.35, 64, 32))
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	if err := pointcloud.ToPCD(cloud, &buf, pointcloud.PCDBinary); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), cloud, nil
}

// readCloudFile returns PCD bytes for the file at path. PCD files are validated and served as
// they are; other point cloud formats are re-encoded as binary PCD.
func readCloudFile(path string, logger logging.Logger) ([]byte, pointcloud.PointCloud, error) {
	var (
		data  []byte
		cloud pointcloud.PointCloud
		err   error
	)
	if strings.ToLower(filepath.Ext(path)) == ".pcd" {
		//nolint:gosec
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		cloud, err = pointcloud.ReadPCD(bytes.NewReader(data))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "malformed point cloud %q", path)
		}
	} else {
		cloud, err = pointcloud.NewFromFile(path, logger)
		if err != nil {
			return nil, nil, err
		}
		var buf bytes.Buffer
		if err := pointcloud.ToPCD(cloud, &buf, pointcloud.PCDBinary); err != nil {
			return nil, nil, err
		}
		data = buf.Bytes()
	}
	if cloud.Size() == 0 {
		return nil, nil, errors.Errorf("point cloud %q has no points", path)
	}
	return data, cloud, nil
}

func describeCloud(cloud pointcloud.PointCloud, size int) CloudInfo {
	meta := cloud.MetaData()
	info := CloudInfo{
		Points:   cloud.Size(),
		Bytes:    size,
		HasColor: meta.HasColor,
	}
	if cloud.Size() > 0 {
		lo, hi := meta.Min(), meta.Max()
		info.Min = [3]float64{lo.X, lo.Y, lo.Z}
		info.Max = [3]float64{hi.X, hi.Y, hi.Z}
	}
	return info
}

// read reads the cloud file, turning a panic in a decoder into an error.
func (cs *CloudStore) read() (data []byte, cloud pointcloud.PointCloud, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, cloud = nil, nil
			err = errors.Errorf("cannot decode point cloud %q: %v", cs.path, r)
		}
	}()
	return cs.readFile(cs.path, cs.logger)
}

// Reload reads the cloud file again. Failures are logged and switch the store to the
// fallback cloud; they are never returned. Concurrent reloads run one at a time.
func (cs *CloudStore) Reload() CloudInfo {
	cs.reloadMu.Lock()
	defer cs.reloadMu.Unlock()

	data, cloud, err := cs.read()

	var info CloudInfo
	if err != nil {
		cs.logger.Warnw("cannot load point cloud; serving the fallback cloud", "path", cs.path, "error", err)
		data = cs.fallbackData
		info = describeCloud(cs.fallbackCloud, len(data))
		info.Source = SourceFallback
		info.Error = err.Error()
	} else {
		info = describeCloud(cloud, len(data))
		info.Source = SourceFile
		cs.logger.Infow("loaded point cloud", "path", cs.path, "points", info.Points, "bytes", info.Bytes)
	}
	info.Path = cs.path
	info.LoadedAt = cs.clock.Now().UTC()

	cs.mu.Lock()
	cs.data = data
	cs.info = info
	cs.mu.Unlock()
	return info
}

// Current returns the PCD bytes being served and their description. The returned slice must
// not be modified.
func (cs *CloudStore) Current() ([]byte, CloudInfo) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.data, cs.info
}

// Watch reloads the cloud whenever its file is created, written, renamed or removed, until ctx
// is done. Bursts of events are collapsed into one reload.
func (cs *CloudStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(watcher.Close)

	dir := filepath.Dir(cs.path)
	if err := watcher.Add(dir); err != nil {
		cs.logger.Warnw("cannot watch point cloud directory; restart to pick up changes", "dir", dir, "error", err)
		<-ctx.Done()
		return nil
	}
	cs.logger.Debugw("watching point cloud", "path", cs.path)

	base := filepath.Base(cs.path)
	debounced := debounce.New(reloadDebounce)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base || event.Op == fsnotify.Chmod {
				continue
			}
			cs.logger.Debugw("point cloud changed", "event", event.Op.String())
			debounced(func() {
				if ctx.Err() == nil {
					cs.Reload()
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			cs.logger.Warnw("point cloud watcher error", "error", err)
		}
	}
}
