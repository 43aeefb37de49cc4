package page

// Template is a string-based enum naming page templates.
type Template string

const (
	// Home corresponds to templates/home.html
	Home        Template = "home"
	Cluster     Template = "cluster"
	Review      Template = "review"
	Done        Template = "done"
	Merge       Template = "merge"
	Settings    Template = "settings"
	Annotations Template = "annotations"
	Restart     Template = "restart"
	NotFound    Template = "not_found"
)

// Templates lists every page NewRenderer parses.
var Templates = []Template{
	Home,
	Cluster,
	Review,
	Done,
	Merge,
	Settings,
	Annotations,
	Restart,
	NotFound,
}
