package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fsmstack/internal/config"
)

// LoadMode controls how errors are handled during config loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading machine definitions from a
// directory.
type LoadResult struct {
	Machines  []*config.MachineSpec
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// Machine returns the machine named name, or the only machine when name
// is empty and exactly one is defined.
func (r *LoadResult) Machine(name string) (*config.MachineSpec, error) {
	if name == "" {
		if len(r.Machines) != 1 {
			return nil, &LoadError{
				Code:    ErrCodeMachineNotFound,
				Message: fmt.Sprintf("%d machines defined; select one with --machine", len(r.Machines)),
			}
		}
		return r.Machines[0], nil
	}
	for _, m := range r.Machines {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, &LoadError{
		Code:    ErrCodeMachineNotFound,
		Message: fmt.Sprintf("machine %q not defined", name),
	}
}

// LoadError represents an error that occurred during config loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadMachines loads and compiles every machine under a config directory.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadMachines(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	specs, compileErrs := config.CompileAll(value)
	result.Machines = specs

	var errs []error
	for _, compileErr := range compileErrs {
		errs = append(errs, convertCompileError(compileErr))
		if mode == LoadModeFailFast {
			return result, errs
		}
	}

	if len(result.Machines) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoMachines, Message: "no machines found in config"})
	}

	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a config error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *config.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeNoMachines  = "E007" // No machine definitions
	ErrCodeDatabase    = "E008" // Store open/read/write failed

	// Machine definition errors
	ErrCodeInitial         = "E101" // Invalid initial state
	ErrCodeModes           = "E102" // Unknown execution mode
	ErrCodeRate            = "E103" // Invalid tick or fixed rate
	ErrCodeNoStates        = "E104" // No states declared
	ErrCodeInvalidState    = "E110" // Invalid state action or rule
	ErrCodeCUE             = "E111" // CUE evaluation error
	ErrCodeMachineNotFound = "E120" // Selected machine not defined

	// Command results
	ErrCodeScenarioFailed = "E201" // One or more scenarios failed
	ErrCodeRunNotFound    = "E202" // Run ID not in the database
)

// MapFieldToErrorCode maps a config error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "initial":
		return ErrCodeInitial
	case field == "modes":
		return ErrCodeModes
	case field == "tick_rate", field == "fixed_rate":
		return ErrCodeRate
	case field == "states":
		return ErrCodeNoStates
	case strings.HasPrefix(field, "states."):
		return ErrCodeInvalidState
	case field == "cue":
		return ErrCodeCUE
	default:
		return ErrCodeGeneric
	}
}
