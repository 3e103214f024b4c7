package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

// ParseOutputFormat accepts table, json or yaml.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputTable, OutputJSON, OutputYAML:
		return f, nil
	case "":
		return OutputTable, nil
	default:
		return "", fmt.Errorf("invalid output format %q (valid: table, json, yaml)", s)
	}
}

type OutputOptions struct {
	Format    OutputFormat
	Quiet     bool
	Writer    io.Writer
	ErrWriter io.Writer
}

func NewOutputOptions() *OutputOptions {
	return &OutputOptions{
		Format:    OutputTable,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

func FormatOutput(data any, format OutputFormat) (string, error) {
	switch format {
	case OutputJSON:
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal JSON: %w", err)
		}
		return string(b) + "\n", nil
	case OutputYAML:
		b, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("marshal YAML: %w", err)
		}
		return string(b), nil
	default:
		return formatTable(data), nil
	}
}

// formatTable renders structs as key/value rows, maps sorted by key and
// slices one item per line.
func formatTable(data any) string {
	if data == nil {
		return ""
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			name, ok := columnName(field)
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\n", name, formatValue(v.Field(i).Interface()))
		}
	case reflect.Map:
		keys := make([]string, 0, v.Len())
		values := make(map[string]string, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			keys = append(keys, k)
			values[k] = formatValue(iter.Value().Interface())
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\n", k, values[k])
		}
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "No items\n"
		}
		for i := 0; i < v.Len(); i++ {
			fmt.Fprintln(w, formatValue(v.Index(i).Interface()))
		}
	default:
		return formatValue(data) + "\n"
	}

	w.Flush()
	return sb.String()
}

// columnName returns the json name of an exported field.
func columnName(field reflect.StructField) (string, bool) {
	if field.PkgPath != "" {
		return "", false
	}
	name := field.Tag.Get("json")
	if name == "-" {
		return "", false
	}
	if idx := strings.Index(name, ","); idx != -1 {
		name = name[:idx]
	}
	if name == "" {
		name = field.Name
	}
	return name, true
}

func formatValue(v any) string {
	if v == nil {
		return ""
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "-"
		}
		v = rv.Elem().Interface()
	}

	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		if val.IsZero() {
			return "-"
		}
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float32, float64:
		return fmt.Sprintf("%.2f", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		if rv := reflect.ValueOf(val); rv.Kind() == reflect.String {
			return rv.String()
		}
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

func PrintOutput(data any, opts *OutputOptions) error {
	if opts.Quiet {
		return nil
	}

	output, err := FormatOutput(data, opts.Format)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(opts.Writer, output)
	return err
}

type messageView struct {
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message" yaml:"message"`
}

func PrintError(err error, opts *OutputOptions) {
	if opts.Format == OutputJSON || opts.Format == OutputYAML {
		out, ferr := FormatOutput(messageView{Success: false, Message: err.Error()}, opts.Format)
		if ferr == nil {
			fmt.Fprint(opts.ErrWriter, out)
			return
		}
	}
	fmt.Fprintf(opts.ErrWriter, "Error: %v\n", err)
}

func PrintSuccess(message string, opts *OutputOptions) {
	if opts.Quiet {
		return
	}

	if opts.Format == OutputJSON || opts.Format == OutputYAML {
		out, err := FormatOutput(messageView{Success: true, Message: message}, opts.Format)
		if err == nil {
			fmt.Fprint(opts.Writer, out)
			return
		}
	}
	fmt.Fprintln(opts.Writer, message)
}
