package catalog

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/quarryql/quarry/internal/datatype"
)

// Error codes for catalog loading failures.
const (
	ErrCodeNotFound    = "CATALOG_NOT_FOUND"
	ErrCodeLoadFailed  = "CATALOG_LOAD_FAILED"
	ErrCodeBuildFailed = "CATALOG_BUILD_FAILED"
	ErrCodeBadTable    = "CATALOG_BAD_TABLE"
)

// LoadError reports a failure while loading or decoding catalog CUE.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir loads every CUE file in dir into one catalog.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return FromValue(value)
}

// FromValue decodes a catalog from an already built CUE value. The value
// must contain a top-level `table` struct:
//
//	table: orders: {
//		columns: [
//			{name: "id", type: "int64"},
//			{name: "customer", type: "string", nullable: true},
//		]
//	}
//
// Column types use the textual form accepted by datatype.Parse.
func FromValue(v cue.Value) (*Catalog, error) {
	tables := make(map[string]*datatype.Schema)

	tablesVal := v.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: "no top-level table struct", Pos: v.Pos()}
	}
	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("iterating tables: %v", err)}
	}
	for iter.Next() {
		name := iter.Label()
		schema, err := decodeTable(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
		tables[name] = schema
	}
	if len(tables) == 0 {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: "catalog declares no tables", Pos: v.Pos()}
	}
	return &Catalog{tables: tables}, nil
}

func decodeTable(v cue.Value) (*datatype.Schema, error) {
	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return nil, &LoadError{Code: ErrCodeBadTable, Message: "columns list is required", Pos: v.Pos()}
	}
	list, err := colsVal.List()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadTable, Message: fmt.Sprintf("columns must be a list: %v", err), Pos: colsVal.Pos()}
	}

	var fields []datatype.Field
	for list.Next() {
		field, err := decodeColumn(list.Value())
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	schema, err := datatype.NewSchema(fields)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadTable, Message: err.Error(), Pos: v.Pos()}
	}
	return schema, nil
}

func decodeColumn(v cue.Value) (datatype.Field, error) {
	nameVal := v.LookupPath(cue.ParsePath("name"))
	name, err := nameVal.String()
	if err != nil {
		return datatype.Field{}, &LoadError{Code: ErrCodeBadTable, Message: "column name is required", Pos: v.Pos()}
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	typeStr, err := typeVal.String()
	if err != nil {
		return datatype.Field{}, &LoadError{Code: ErrCodeBadTable, Message: fmt.Sprintf("column %s: type is required", name), Pos: v.Pos()}
	}
	dt, err := datatype.Parse(typeStr)
	if err != nil {
		return datatype.Field{}, &LoadError{Code: ErrCodeBadTable, Message: fmt.Sprintf("column %s: %v", name, err), Pos: typeVal.Pos()}
	}

	nullable := false
	if nv := v.LookupPath(cue.ParsePath("nullable")); nv.Exists() {
		nullable, err = nv.Bool()
		if err != nil {
			return datatype.Field{}, &LoadError{Code: ErrCodeBadTable, Message: fmt.Sprintf("column %s: nullable must be a bool", name), Pos: nv.Pos()}
		}
	}
	return datatype.Field{Name: name, Type: dt, Nullable: nullable}, nil
}
