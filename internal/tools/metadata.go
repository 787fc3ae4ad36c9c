package tools

// Category classifies a tool for the batch dispatcher's grouping decision
// (spec.md §4.8). Each category maps to exactly one ExecutionMode.
type Category string

const (
	CategoryFileRead     Category = "file_read"
	CategoryCodeAnalysis Category = "code_analysis"
	CategoryFileSystem   Category = "file_system"
	CategoryNetwork      Category = "network"
	CategoryFileWrite    Category = "file_write"
	CategoryExecution    Category = "execution"
	CategoryTerminal     Category = "terminal"
)

// ExecutionMode determines whether a tool can run concurrently alongside
// other tools in the same batch, or must run alone in sequence.
type ExecutionMode string

const (
	ModeParallel   ExecutionMode = "parallel"
	ModeSequential ExecutionMode = "sequential"
)

// executionMode implements spec.md §4.8's fixed category→mode table:
// FileRead/CodeAnalysis/FileSystem/Network are Parallel; FileWrite/
// Execution/Terminal are Sequential.
func (c Category) executionMode() ExecutionMode {
	switch c {
	case CategoryFileRead, CategoryCodeAnalysis, CategoryFileSystem, CategoryNetwork:
		return ModeParallel
	case CategoryFileWrite, CategoryExecution, CategoryTerminal:
		return ModeSequential
	default:
		return ModeSequential
	}
}

// Metadata is the per-tool descriptive block spec.md §4.8 requires
// alongside its name/description/schema: category (which also determines
// execution mode), a ProtectedFromCompaction flag (set on read_file; the
// compaction in internal/agentctx does not read it), and free-form tags for
// UI grouping.
type Metadata struct {
	Category                Category
	ProtectedFromCompaction bool
	Tags                    []string
}
