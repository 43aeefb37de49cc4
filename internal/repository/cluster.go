package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/deppfellow/cluster-reviewer/internal/fserr"
	"github.com/deppfellow/cluster-reviewer/internal/settings"
	"github.com/deppfellow/cluster-reviewer/internal/validation"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	// ClusterPrefix marks the directories treated as clusters.
	ClusterPrefix = "cluster_"

	// CreateNewCluster is the pseudo cluster offered first by PreviewsExtended.
	CreateNewCluster = "_CREATE_NEW_"

	// NoPreviewImage is shown for clusters without any image.
	NoPreviewImage = "/assets/no-preview.svg"
)

// Mode is how images sit inside a cluster.
type Mode string

const (
	// ModeSingle clusters hold images directly.
	ModeSingle Mode = "single"

	// ModeGroups clusters hold group directories that hold images.
	ModeGroups Mode = "groups"
)

func modeOf(s settings.Settings) Mode {
	if s.GroupMode {
		return ModeGroups
	}
	return ModeSingle
}

var (
	imageExtRegex       = regexp.MustCompile(`(?i)\.(jpe?g|png|webp)$`)
	unsafeNameRegex     = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	numberedClusterRegx = regexp.MustCompile(`^cluster_(\d+)$`)
)

// IsImage reports whether name has an image extension the reviewer shows.
func IsImage(name string) bool {
	return imageExtRegex.MatchString(name)
}

// SanitizeClusterName replaces unsafe characters with "_" and adds the
// cluster prefix when missing: "kitchen lights" -> "cluster_kitchen_lights".
func SanitizeClusterName(name string) string {
	clean := unsafeNameRegex.ReplaceAllString(strings.TrimSpace(name), "_")
	if strings.HasPrefix(clean, ClusterPrefix) {
		return clean
	}
	return ClusterPrefix + clean
}

// SortClusters orders names by their numeric suffix, then by name.
// Names without a number sort last.
func SortClusters(names []string) {
	slices.SortStableFunc(names, func(a, b string) int {
		na, nb := clusterNumber(a), clusterNumber(b)
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return strings.Compare(a, b)
	})
}

// clusterNumber reads the leading digits after the prefix: cluster_12_b -> 12.
func clusterNumber(name string) int {
	rest := strings.TrimPrefix(name, ClusterPrefix)
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return math.MaxInt
	}
	return n
}

type ClusterStats struct {
	Name         string `json:"name"`
	ItemCount    int    `json:"item_count"`
	GroupCount   int    `json:"group_count"`
	PreviewImage string `json:"preview_image,omitempty"`
	Mode         Mode   `json:"mode"`
}

type Preview struct {
	Name        string `json:"name"`
	Preview     string `json:"preview"`
	DisplayName string `json:"display_name,omitempty"`
	IsNew       bool   `json:"is_new"`
}

type Group struct {
	Name   string   `json:"name"`
	Images []string `json:"images"`
}

// ClusterContents lists what a cluster holds. Groups is set in group mode,
// Images otherwise.
type ClusterContents struct {
	Name   string   `json:"name"`
	Mode   Mode     `json:"mode"`
	Groups []Group  `json:"groups,omitempty"`
	Images []string `json:"images,omitempty"`
}

// Items is the list of movable entries: group names or image names.
func (c ClusterContents) Items() []string {
	if c.Mode == ModeGroups {
		out := make([]string, len(c.Groups))
		for i, g := range c.Groups {
			out[i] = g.Name
		}
		return out
	}
	return c.Images
}

type MoveResult struct {
	Moved             int      `json:"moved"`
	Total             int      `json:"total"`
	NewClusterCreated bool     `json:"new_cluster_created"`
	TargetCluster     string   `json:"target_cluster"`
	Errors            []string `json:"errors,omitempty"`
}

type MergeResult struct {
	Moved          int      `json:"moved"`
	Total          int      `json:"total"`
	TargetCluster  string   `json:"target_cluster"`
	MergedClusters []string `json:"merged_clusters"`
	Errors         []string `json:"errors,omitempty"`
}

// ClusterRepository reads and reorganises the cluster tree under the
// configured base folder.
//
// Mutations are serialised. Every successful batch of moves is appended to
// the movement log.
type ClusterRepository struct {
	fs        afero.Fs
	layout    Layout
	undefined string
	movements *MovementLog
	logger    *zerolog.Logger
	now       func() time.Time

	mu sync.Mutex
}

func NewClusterRepository(fsys afero.Fs, layout Layout, undefinedFolder string, movements *MovementLog, logger *zerolog.Logger) *ClusterRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ClusterRepository{
		fs:        fsys,
		layout:    layout,
		undefined: undefinedFolder,
		movements: movements,
		logger:    logger,
		now:       time.Now,
	}
}

// UndefinedFolder is the name of the folder that receives removed images.
func (r *ClusterRepository) UndefinedFolder() string {
	return r.undefined
}

func baseDir(s settings.Settings) string {
	return filepath.Join("/", filepath.FromSlash(s.BaseFolder))
}

// logKey is the root-relative path recorded in the movement log.
func logKey(s settings.Settings, parts ...string) string {
	return path.Join(append([]string{filepath.ToSlash(s.BaseFolder)}, parts...)...)
}

// ImageURL is where the router serves an image below the base folder.
func ImageURL(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return "/clusters/" + strings.Join(escaped, "/")
}

func checkSegment(entity, name string) error {
	if !validation.IsPathSegment(name) {
		return fserr.Invalid(entity, name, "must be a plain folder or file name")
	}
	return nil
}

func (r *ClusterRepository) dirExists(dir string) (bool, error) {
	ok, err := afero.DirExists(r.fs, dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return ok, nil
}

func (r *ClusterRepository) requireCluster(s settings.Settings, name string) (string, error) {
	if err := checkSegment("cluster", name); err != nil {
		return "", err
	}
	dir := filepath.Join(baseDir(s), name)
	ok, err := r.dirExists(dir)
	if err != nil {
		return "", fserr.Wrap("read", "cluster", name, err)
	}
	if !ok {
		return "", fserr.NotFound("cluster", name)
	}
	return dir, nil
}

// images lists the image files directly in dir, sorted by name.
func (r *ClusterRepository) images(dir string) ([]string, error) {
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if !e.IsDir() && IsImage(e.Name()) {
			out = append(out, e.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}

// subdirs lists the directories directly in dir, sorted by name.
func (r *ClusterRepository) subdirs(dir string) ([]string, error) {
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}

// BaseExists reports whether the configured base folder is present.
func (r *ClusterRepository) BaseExists() (bool, error) {
	return r.dirExists(baseDir(r.layout.Current()))
}

// List returns the cluster names, sorted by number. A missing base folder
// yields an empty list.
func (r *ClusterRepository) List() ([]string, error) {
	s := r.layout.Current()

	names, err := r.subdirs(baseDir(s))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fserr.Wrap("list", "base folder", s.BaseFolder, err)
	}

	clusters := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, ClusterPrefix) {
			clusters = append(clusters, n)
		}
	}
	SortClusters(clusters)
	return clusters, nil
}

func (r *ClusterRepository) Exists(name string) (bool, error) {
	if !validation.IsPathSegment(name) {
		return false, nil
	}
	return r.dirExists(filepath.Join(baseDir(r.layout.Current()), name))
}

// Contents lists a cluster's groups or images, depending on the mode.
func (r *ClusterRepository) Contents(name string) (ClusterContents, error) {
	s := r.layout.Current()
	dir, err := r.requireCluster(s, name)
	if err != nil {
		return ClusterContents{}, err
	}

	out := ClusterContents{Name: name, Mode: modeOf(s)}

	if out.Mode == ModeSingle {
		out.Images, err = r.images(dir)
		if err != nil {
			return ClusterContents{}, fserr.Wrap("read", "cluster", name, err)
		}
		return out, nil
	}

	groups, err := r.subdirs(dir)
	if err != nil {
		return ClusterContents{}, fserr.Wrap("read", "cluster", name, err)
	}
	out.Groups = make([]Group, 0, len(groups))
	for _, g := range groups {
		imgs, err := r.images(filepath.Join(dir, g))
		if err != nil {
			return ClusterContents{}, fserr.Wrap("read", "group", g, err)
		}
		out.Groups = append(out.Groups, Group{Name: g, Images: imgs})
	}
	return out, nil
}

// Stats counts a cluster's items and picks its preview image.
func (r *ClusterRepository) Stats(name string) (ClusterStats, error) {
	c, err := r.Contents(name)
	if err != nil {
		return ClusterStats{}, err
	}

	stats := ClusterStats{Name: name, Mode: c.Mode}
	if c.Mode == ModeSingle {
		stats.ItemCount = len(c.Images)
		if len(c.Images) > 0 {
			stats.PreviewImage = ImageURL(name, c.Images[0])
		}
		return stats, nil
	}

	stats.GroupCount = len(c.Groups)
	for _, g := range c.Groups {
		stats.ItemCount += len(g.Images)
		if stats.PreviewImage == "" && len(g.Images) > 0 {
			stats.PreviewImage = ImageURL(name, g.Name, g.Images[0])
		}
	}
	return stats, nil
}

// Previews returns the clusters that have at least one image, with the first one.
func (r *ClusterRepository) Previews() ([]Preview, error) {
	all, err := r.previews()
	if err != nil {
		return nil, err
	}
	out := []Preview{}
	for _, p := range all {
		if p.Preview != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// PreviewsExtended returns every cluster, empty ones with NoPreviewImage,
// preceded by the CreateNewCluster entry.
func (r *ClusterRepository) PreviewsExtended() ([]Preview, error) {
	all, err := r.previews()
	if err != nil {
		return nil, err
	}
	out := make([]Preview, 0, len(all)+1)
	out = append(out, Preview{Name: CreateNewCluster, Preview: NoPreviewImage, DisplayName: "New cluster", IsNew: true})
	for _, p := range all {
		if p.Preview == "" {
			p.Preview = NoPreviewImage
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *ClusterRepository) previews() ([]Preview, error) {
	names, err := r.List()
	if err != nil {
		return nil, err
	}
	out := make([]Preview, 0, len(names))
	for _, n := range names {
		stats, err := r.Stats(n)
		if err != nil {
			r.logger.Warn().Err(err).Str("cluster", n).Msg("skipping cluster preview")
			continue
		}
		out = append(out, Preview{Name: n, Preview: stats.PreviewImage, DisplayName: n})
	}
	return out, nil
}

// NextNumber is one more than the highest cluster_<N>, or 1.
func (r *ClusterRepository) NextNumber() (int, error) {
	names, err := r.List()
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, n := range names {
		m := numberedClusterRegx.FindStringSubmatch(n)
		if m == nil {
			continue
		}
		if v, err := strconv.Atoi(m[1]); err == nil && v > highest {
			highest = v
		}
	}
	return highest + 1, nil
}

// Create makes an empty cluster and returns its sanitised name.
func (r *ClusterRepository) Create(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.create(r.layout.Current(), name)
}

func (r *ClusterRepository) create(s settings.Settings, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fserr.Invalid("cluster", name, "name is empty")
	}

	final := SanitizeClusterName(name)
	dir := filepath.Join(baseDir(s), final)

	exists, err := r.dirExists(dir)
	if err != nil {
		return "", fserr.Wrap("create", "cluster", final, err)
	}
	if exists {
		return "", fserr.AlreadyExists("cluster", final)
	}
	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fserr.Wrap("create", "cluster", final, err)
	}

	r.logger.Info().Str("cluster", final).Msg("cluster created")
	return final, nil
}

// MoveItems moves images (or groups, in group mode) from one folder to a
// cluster. An existing item in the target is overwritten. Items missing
// from the source are skipped. When the target does not exist it is
// created if create is set, and the created name is reported in the result.
func (r *ClusterRepository) MoveItems(source, target string, items []string, create bool) (MoveResult, error) {
	if err := checkSegment("cluster", source); err != nil {
		return MoveResult{}, err
	}
	if err := checkItems(items); err != nil {
		return MoveResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.layout.Current()
	srcDir := filepath.Join(baseDir(s), source)
	if ok, err := r.dirExists(srcDir); err != nil || !ok {
		if err != nil {
			return MoveResult{}, fserr.Wrap("read", "cluster", source, err)
		}
		return MoveResult{}, fserr.NotFound("cluster", source)
	}

	result := MoveResult{Total: len(items), TargetCluster: target}

	if checkSegment("cluster", target) == nil {
		exists, err := r.dirExists(filepath.Join(baseDir(s), target))
		if err != nil {
			return MoveResult{}, fserr.Wrap("read", "cluster", target, err)
		}
		if !exists && !create {
			return MoveResult{}, fserr.NotFound("cluster", target)
		}
		if !exists {
			name, err := r.create(s, target)
			if err != nil {
				return MoveResult{}, err
			}
			result.TargetCluster, result.NewClusterCreated = name, true
		}
	} else if create {
		name, err := r.create(s, target)
		if err != nil {
			return MoveResult{}, err
		}
		result.TargetCluster, result.NewClusterCreated = name, true
	} else {
		return MoveResult{}, checkSegment("cluster", target)
	}

	if result.TargetCluster == source {
		return MoveResult{}, fserr.Invalid("cluster", target, "source and target are the same")
	}

	r.moveBatch(s, source, result.TargetCluster, items, &result)
	return result, nil
}

// MoveToUndefined moves items from a folder into the undefined folder,
// creating it when needed.
func (r *ClusterRepository) MoveToUndefined(folder string, items []string) (MoveResult, error) {
	if err := checkSegment("cluster", folder); err != nil {
		return MoveResult{}, err
	}
	if err := checkItems(items); err != nil {
		return MoveResult{}, err
	}
	if folder == r.undefined {
		return MoveResult{}, fserr.Invalid("cluster", folder, "items are already in the undefined folder")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.layout.Current()
	if err := r.fs.MkdirAll(filepath.Join(baseDir(s), r.undefined), 0o755); err != nil {
		return MoveResult{}, fserr.Wrap("create", "undefined folder", r.undefined, err)
	}

	result := MoveResult{Total: len(items), TargetCluster: r.undefined}
	r.moveBatch(s, folder, r.undefined, items, &result)
	return result, nil
}

func (r *ClusterRepository) moveBatch(s settings.Settings, source, target string, items []string, result *MoveResult) {
	srcDir := filepath.Join(baseDir(s), source)
	dstDir := filepath.Join(baseDir(s), target)
	movements := map[string]string{}

	for _, item := range items {
		from := filepath.Join(srcDir, item)
		if _, err := r.fs.Stat(from); err != nil {
			continue
		}
		if err := moveEntry(r.fs, from, filepath.Join(dstDir, item), true); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item, err))
			r.logger.Error().Err(err).Str("item", item).Str("from", source).Str("to", target).Msg("move failed")
			continue
		}
		movements[logKey(s, source, item)] = logKey(s, target, item)
		result.Moved++
	}

	r.record(movements)
}

// MoveClusterToUndefined empties a cluster into the undefined folder and
// removes it. Loose files always move; group directories move in group
// mode. Anything left behind keeps the cluster directory in place and is
// reported as an error.
func (r *ClusterRepository) MoveClusterToUndefined(name string) (MoveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.layout.Current()
	dir, err := r.requireCluster(s, name)
	if err != nil {
		return MoveResult{}, err
	}

	undefinedDir := filepath.Join(baseDir(s), r.undefined)
	if err := r.fs.MkdirAll(undefinedDir, 0o755); err != nil {
		return MoveResult{}, fserr.Wrap("create", "undefined folder", r.undefined, err)
	}

	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return MoveResult{}, fserr.Wrap("read", "cluster", name, err)
	}

	result := MoveResult{TargetCluster: r.undefined}
	movements := map[string]string{}
	for _, e := range entries {
		if e.IsDir() && !s.GroupMode {
			continue
		}
		result.Total++
		if err := moveEntry(r.fs, filepath.Join(dir, e.Name()), filepath.Join(undefinedDir, e.Name()), true); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", e.Name(), err))
			continue
		}
		movements[logKey(s, name, e.Name())] = logKey(s, r.undefined, e.Name())
		result.Moved++
	}
	r.record(movements)

	if err := removeEmptyDir(r.fs, dir); err != nil {
		return result, fserr.Wrap("remove", "cluster", name, err)
	}

	r.logger.Info().Str("cluster", name).Int("moved", result.Moved).Msg("cluster moved to undefined")
	return result, nil
}

// Merge moves everything from source into target and removes source.
// Name clashes are renamed to <name>_merged_<unix ms><ext>.
func (r *ClusterRepository) Merge(source, target string) (MergeResult, error) {
	if source == target {
		return MergeResult{}, fserr.Invalid("cluster", target, "source and target must differ")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.layout.Current()
	srcDir, err := r.requireCluster(s, source)
	if err != nil {
		return MergeResult{}, err
	}
	dstDir, err := r.requireCluster(s, target)
	if err != nil {
		return MergeResult{}, err
	}

	result := MergeResult{TargetCluster: target, MergedClusters: []string{source}}
	movements := map[string]string{}
	r.mergeInto(s, source, srcDir, target, dstDir, movements, &result)
	r.record(movements)

	return result, nil
}

// MergeMany merges every name except target into target. An empty target
// means the first name. Missing sources are reported in Errors and skipped.
func (r *ClusterRepository) MergeMany(names []string, target string) (MergeResult, error) {
	if target == "" && len(names) > 0 {
		target = names[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.layout.Current()
	dstDir, err := r.requireCluster(s, target)
	if err != nil {
		return MergeResult{}, err
	}

	var sources []string
	for _, n := range names {
		if n != target && !slices.Contains(sources, n) {
			sources = append(sources, n)
		}
	}
	if len(sources) == 0 {
		return MergeResult{}, fserr.Invalid("cluster", target, "no other clusters to merge")
	}

	result := MergeResult{TargetCluster: target, MergedClusters: sources}
	movements := map[string]string{}
	for _, src := range sources {
		srcDir, err := r.requireCluster(s, src)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		r.mergeInto(s, src, srcDir, target, dstDir, movements, &result)
	}
	r.record(movements)

	return result, nil
}

func (r *ClusterRepository) mergeInto(s settings.Settings, source, srcDir, target, dstDir string, movements map[string]string, result *MergeResult) {
	fail := func(item string, err error) {
		result.Total++
		result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", source, item, err))
		r.logger.Error().Err(err).Str("source", source).Str("target", target).Str("item", item).Msg("merge move failed")
	}

	moveImages := func(from, to string, group ...string) {
		imgs, err := r.images(from)
		if err != nil {
			fail(path.Join(group...), err)
			return
		}
		for _, img := range imgs {
			final := r.freeName(to, img)
			if err := moveEntry(r.fs, filepath.Join(from, img), filepath.Join(to, final), false); err != nil {
				fail(path.Join(append(group, img)...), err)
				continue
			}
			movements[logKey(s, append(append([]string{source}, group...), img)...)] =
				logKey(s, append(append([]string{target}, group...), final)...)
			result.Moved++
			result.Total++
		}
	}

	if !s.GroupMode {
		moveImages(srcDir, dstDir)
	} else {
		groups, err := r.subdirs(srcDir)
		if err != nil {
			fail("", err)
		}
		for _, g := range groups {
			from, to := filepath.Join(srcDir, g), filepath.Join(dstDir, g)

			exists, err := r.dirExists(to)
			if err != nil {
				fail(g, err)
				continue
			}
			if exists {
				moveImages(from, to, g)
				_ = removeEmptyDir(r.fs, from)
				continue
			}

			if err := moveEntry(r.fs, from, to, false); err != nil {
				fail(g, err)
				continue
			}
			imgs, _ := r.images(to)
			for _, img := range imgs {
				movements[logKey(s, source, g, img)] = logKey(s, target, g, img)
				result.Moved++
				result.Total++
			}
		}
	}

	if err := removeEmptyDir(r.fs, srcDir); err != nil {
		r.logger.Warn().Err(err).Str("cluster", source).Msg("source cluster not removed after merge")
	}
}

// freeName returns name, or <base>_merged_<unix ms><ext> if name is taken in dir.
func (r *ClusterRepository) freeName(dir, name string) string {
	if ok, _ := afero.Exists(r.fs, filepath.Join(dir, name)); !ok {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for ms := r.now().UnixMilli(); ; ms++ {
		candidate := fmt.Sprintf("%s_merged_%d%s", base, ms, ext)
		if ok, _ := afero.Exists(r.fs, filepath.Join(dir, candidate)); !ok {
			return candidate
		}
	}
}

func (r *ClusterRepository) record(movements map[string]string) {
	if r.movements == nil {
		return
	}
	if err := r.movements.Append(movements); err != nil {
		r.logger.Error().Err(err).Int("movements", len(movements)).Msg("failed to record movements")
	}
}

func checkItems(items []string) error {
	if len(items) == 0 {
		return fserr.Invalid("item", "", "no items given")
	}
	for _, it := range items {
		if err := checkSegment("item", it); err != nil {
			return err
		}
	}
	return nil
}
