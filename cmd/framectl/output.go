package main

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

type formatter interface {
	Format(data any) string
}

// newFormatter 支持 table（默认）、json、yaml
func newFormatter(format string) formatter {
	switch strings.ToLower(format) {
	case "json":
		return jsonFormatter{}
	case "yaml":
		return yamlFormatter{}
	default:
		return tableFormatter{}
	}
}

type jsonFormatter struct{}

func (jsonFormatter) Format(data any) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("error: %v\n", err)
	}
	return string(b) + "\n"
}

type yamlFormatter struct{}

func (yamlFormatter) Format(data any) string {
	b, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Sprintf("error: %v\n", err)
	}
	return string(b)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle    = lipgloss.NewStyle().Bold(true)
)

// tableFormatter 结构体切片按列对齐输出，单个结构体按 KEY: value 输出
type tableFormatter struct{}

func (tableFormatter) Format(data any) string {
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Slice:
		if v.Len() == 0 {
			return "No entries.\n"
		}
		t := v.Type().Elem()
		rows := make([][]string, 0, v.Len()+1)
		headers := make([]string, t.NumField())
		for i := range headers {
			headers[i] = columnName(t.Field(i))
		}
		rows = append(rows, headers)
		for i := 0; i < v.Len(); i++ {
			row := v.Index(i)
			vals := make([]string, row.NumField())
			for j := range vals {
				vals[j] = fmt.Sprintf("%v", row.Field(j).Interface())
			}
			rows = append(rows, vals)
		}
		return renderRows(rows, true)
	case reflect.Struct:
		t := v.Type()
		rows := make([][]string, t.NumField())
		for i := range rows {
			rows[i] = []string{columnName(t.Field(i)) + ":", fmt.Sprintf("%v", v.Field(i).Interface())}
		}
		return renderRows(rows, false)
	default:
		return fmt.Sprintf("%v\n", data)
	}
}

// renderRows 按列宽补齐；header 为真时首行加粗，否则首列（KEY:）加粗
func renderRows(rows [][]string, header bool) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, r := range rows {
		for i, cell := range r {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	for n, r := range rows {
		cells := make([]string, len(r))
		for i, cell := range r {
			st := lipgloss.NewStyle()
			switch {
			case header && n == 0:
				st = headerStyle
			case !header && i == 0:
				st = keyStyle
			}
			if i < len(r)-1 {
				st = st.Width(widths[i] + 2)
			}
			cells[i] = st.Render(cell)
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
		b.WriteByte('\n')
	}
	return b.String()
}

func columnName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" {
		name = f.Name
	}
	return strings.ToUpper(name)
}
