package config

import "path/filepath"

const (
	RepoDir = ".snapver"

	objectsDir  = "objects"
	tagsDir     = "tags"
	headsDir    = "heads"
	lanesDir    = "lanes"
	stagedDir   = "staged"
	mergesDir   = "merges"
	headLane    = "HEADLANE"
	configFile  = "config.json"
	defaultLane = ""
)

// DefaultLine names the default line; the empty string means "no lane
// active", i.e. the default line itself.
const DefaultLine = defaultLane

// Layout resolves all paths inside one repository root.
type Layout struct {
	Root string // path to the .snapver directory
}

// NewLayout builds a Layout rooted at workdir/.snapver.
func NewLayout(workdir string) *Layout {
	return &Layout{Root: filepath.Join(workdir, RepoDir)}
}

func (l *Layout) ObjectsDir() string  { return filepath.Join(l.Root, objectsDir) }
func (l *Layout) TagsDir() string     { return filepath.Join(l.Root, tagsDir) }
func (l *Layout) HeadsDir() string    { return filepath.Join(l.Root, headsDir) }
func (l *Layout) LanesDir() string    { return filepath.Join(l.Root, lanesDir) }
func (l *Layout) StagedDir() string   { return filepath.Join(l.Root, stagedDir) }
func (l *Layout) MergesDir() string   { return filepath.Join(l.Root, mergesDir) }
func (l *Layout) HeadLaneFile() string { return filepath.Join(l.Root, headLane) }
func (l *Layout) ConfigFile() string  { return filepath.Join(l.Root, configFile) }

// AllDirs lists every directory the repository needs at init time.
func (l *Layout) AllDirs() []string {
	return []string{
		l.Root,
		l.ObjectsDir(),
		l.TagsDir(),
		l.HeadsDir(),
		l.LanesDir(),
		l.StagedDir(),
		l.MergesDir(),
	}
}
