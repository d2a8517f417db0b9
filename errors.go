package keel

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// These are base errors that should be wrapped in typed errors when returned.

var (
	// Container errors.
	ErrKeyNotFound = errors.New("container key not found")

	// Module errors.
	ErrModuleNotFound  = errors.New("module reference not found")
	ErrNilModule       = errors.New("module factory returned nil")
	ErrEmptyName       = errors.New("name cannot be empty")
	ErrDuplicateModule = errors.New("module already registered")
	ErrDuplicateRef    = errors.New("reference already registered")

	// Service errors.
	ErrServiceNotFound = errors.New("service not found")
	ErrNilConstructor  = errors.New("constructor cannot be nil")
	ErrNilInstance     = errors.New("constructor returned nil instance")

	// Factory errors.
	ErrNotCallable     = errors.New("factory is not callable")
	ErrFactoryNotFound = errors.New("factory reference not found")

	// CLI errors.
	ErrCommandNotFound    = errors.New("command not found")
	ErrNilCommand         = errors.New("command factory returned nil")
	ErrMissingArgument    = errors.New("missing required argument")
	ErrUnexpectedArgument = errors.New("unexpected argument")

	// Event and job errors.
	ErrNilHandler = errors.New("event handler cannot be nil")
	ErrNilJob     = errors.New("job cannot be nil")

	// Application errors.
	ErrAlreadyBuilt = errors.New("application has already been built")
	ErrNotBuilt     = errors.New("application has not been built")
	ErrAppClosed    = errors.New("application has been closed")

	// HTTP errors.
	ErrContainerNotInContext = errors.New("container not found in context")
)

var (
	_ error = KeyNotFoundError{}
	_ error = TypeMismatchError{}
	_ error = ModuleLoadError{}
	_ error = ModuleShapeError{}
	_ error = DuplicateModuleError{}
	_ error = ServiceMapShapeError{}
	_ error = FactoryError{}
	_ error = ServiceNotFoundError{}
	_ error = ServiceLoadError{}
	_ error = ConstructorPanicError{}
	_ error = CommandNotFoundError{}
	_ error = CommandLoadError{}
	_ error = ArgumentError{}
	_ error = EventHandlerError{}
	_ error = JobError{}
	_ error = BuildError{}
)

// ========================================
// Typed Errors for Rich Context
// ========================================

// KeyNotFoundError indicates a container lookup for a key that was never added.
type KeyNotFoundError struct {
	Key string
}

func (e KeyNotFoundError) Error() string {
	return fmt.Sprintf("container key %q not found", e.Key)
}

func (e KeyNotFoundError) Unwrap() error {
	return ErrKeyNotFound
}

// TypeMismatchError indicates a stored value is not of the requested type.
type TypeMismatchError struct {
	Key      string
	Expected reflect.Type
	Actual   reflect.Type
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("%q: expected %s, got %s", e.Key, formatType(e.Expected), formatType(e.Actual))
}

// ModuleLoadError indicates a module reference could not be resolved or constructed.
type ModuleLoadError struct {
	Ref   string
	Cause error
}

func (e ModuleLoadError) Error() string {
	return fmt.Sprintf("cannot load module %q: %v", e.Ref, e.Cause)
}

func (e ModuleLoadError) Unwrap() error {
	return e.Cause
}

// ModuleShapeError indicates a resolved module does not satisfy the module contract.
type ModuleShapeError struct {
	Ref   string
	Field string
	Cause error
}

func (e ModuleShapeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("module %q: invalid %s: %v", e.Ref, e.Field, e.Cause)
	}
	return fmt.Sprintf("module %q: %v", e.Ref, e.Cause)
}

func (e ModuleShapeError) Unwrap() error {
	return e.Cause
}

// DuplicateModuleError indicates two loaded modules declare the same name.
type DuplicateModuleError struct {
	Name     string
	Ref      string
	Existing string
}

func (e DuplicateModuleError) Error() string {
	return fmt.Sprintf("module named %q already exists (declared by %q, again by %q)", e.Name, e.Existing, e.Ref)
}

func (e DuplicateModuleError) Unwrap() error {
	return ErrDuplicateModule
}

// ServiceMapShapeError indicates a module's service map holds an invalid entry.
type ServiceMapShapeError struct {
	Module  string
	Service string
	Cause   error
}

func (e ServiceMapShapeError) Error() string {
	return fmt.Sprintf("cannot load service map from module %q: service %q: %v", e.Module, e.Service, e.Cause)
}

func (e ServiceMapShapeError) Unwrap() error {
	return e.Cause
}

// FactoryError indicates a bootstrap factory could not be resolved or invoked.
type FactoryError struct {
	Index int
	Ref   string
	Cause error
}

func (e FactoryError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("factory #%d (%s): %v", e.Index, e.Ref, e.Cause)
	}
	return fmt.Sprintf("factory #%d: %v", e.Index, e.Cause)
}

func (e FactoryError) Unwrap() error {
	return e.Cause
}

// ServiceNotFoundError indicates a lookup for a name absent from the service map.
type ServiceNotFoundError struct {
	Name      string
	Available []string
}

func (e ServiceNotFoundError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("service not found: %q", e.Name))

	similar := findSimilarNames(e.Name, e.Available)
	if len(similar) > 0 {
		b.WriteString("; did you mean ")
		for i, name := range similar {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("%q", name))
		}
		b.WriteString("?")
	}

	return b.String()
}

func (e ServiceNotFoundError) Unwrap() error {
	return ErrServiceNotFound
}

// ServiceLoadError wraps failures while constructing a service.
type ServiceLoadError struct {
	Name  string
	Cause error
}

func (e ServiceLoadError) Error() string {
	return fmt.Sprintf("cannot load service %q: %v", e.Name, e.Cause)
}

func (e ServiceLoadError) Unwrap() error {
	return e.Cause
}

// ConstructorPanicError indicates a service constructor panicked.
// It captures the panic value and stack trace for debugging.
type ConstructorPanicError struct {
	Name  string
	Panic any
	Stack []byte
}

func (e ConstructorPanicError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("constructor for %q panicked: %v", e.Name, e.Panic))

	if len(e.Stack) > 0 {
		b.WriteString("\n\nStack trace:\n")
		b.Write(e.Stack)
	}

	return b.String()
}

// CommandNotFoundError indicates no loaded module declares the requested command.
type CommandNotFoundError struct {
	Command string
}

func (e CommandNotFoundError) Error() string {
	return fmt.Sprintf("command %q not found", e.Command)
}

func (e CommandNotFoundError) Unwrap() error {
	return ErrCommandNotFound
}

// CommandLoadError indicates a declared command handler could not be instantiated.
type CommandLoadError struct {
	Command string
	Module  string
	Cause   error
}

func (e CommandLoadError) Error() string {
	return fmt.Sprintf("cannot load command %q from module %q: %v", e.Command, e.Module, e.Cause)
}

func (e CommandLoadError) Unwrap() error {
	return e.Cause
}

// ArgumentError indicates command-line arguments failed validation.
type ArgumentError struct {
	Command string
	Cause   error
}

func (e ArgumentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Cause)
}

func (e ArgumentError) Unwrap() error {
	return e.Cause
}

// EventHandlerError wraps a failure raised by an event handler during dispatch.
type EventHandlerError struct {
	Event    string
	Priority int
	Cause    error
}

func (e EventHandlerError) Error() string {
	return fmt.Sprintf("event %q (priority %d): %v", e.Event, e.Priority, e.Cause)
}

func (e EventHandlerError) Unwrap() error {
	return e.Cause
}

// JobError wraps a failure raised while preparing or running a job.
type JobError struct {
	Job    string
	Module string
	Cause  error
}

func (e JobError) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("job %q in module %q: %v", e.Job, e.Module, e.Cause)
	}
	return fmt.Sprintf("job %q: %v", e.Job, e.Cause)
}

func (e JobError) Unwrap() error {
	return e.Cause
}

// BuildError wraps errors that occur while building the application
type BuildError struct {
	Phase string // "factories", "modules", "services", "events", "init"
	Cause error
}

func (e BuildError) Error() string {
	return fmt.Sprintf("build failed during %s phase: %v", e.Phase, e.Cause)
}

func (e BuildError) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether err is a container, service or command lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound) ||
		errors.Is(err, ErrServiceNotFound) ||
		errors.Is(err, ErrCommandNotFound) ||
		errors.Is(err, ErrModuleNotFound)
}

// findSimilarNames returns registered names sharing a prefix or substring with target.
func findSimilarNames(target string, available []string) []string {
	if target == "" || len(available) == 0 {
		return nil
	}

	lower := strings.ToLower(target)
	var similar []string
	for _, name := range available {
		candidate := strings.ToLower(name)
		if candidate == lower {
			continue
		}
		if strings.Contains(candidate, lower) || strings.Contains(lower, candidate) {
			similar = append(similar, name)
		}
		if len(similar) >= 5 {
			break
		}
	}

	sort.Strings(similar)
	return similar
}

// formatType formats a reflect.Type for error messages.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Interface, reflect.Struct:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	default:
		return t.String()
	}
}
