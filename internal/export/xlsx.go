package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table 单个工作表的数据
type Table struct {
	Sheet   string
	Meta    [][2]string
	Headers []string
	Rows    [][]interface{}
}

// BuildWorkbook 将表格写入新工作簿；元信息在表头之前逐行输出
func BuildWorkbook(tables ...Table) (*excelize.File, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("no table to export")
	}
	f := excelize.NewFile()
	defaultSheet := f.GetSheetName(0)

	for idx, table := range tables {
		sheet := strings.TrimSpace(table.Sheet)
		if sheet == "" {
			sheet = fmt.Sprintf("Sheet%d", idx+1)
		}
		if idx == 0 {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}

		row := 1
		for _, meta := range table.Meta {
			if err := f.SetSheetRow(sheet, cellName(1, row), &[]interface{}{meta[0], meta[1]}); err != nil {
				return nil, err
			}
			row++
		}
		if len(table.Meta) > 0 {
			row++
		}

		headers := make([]interface{}, 0, len(table.Headers))
		for _, header := range table.Headers {
			headers = append(headers, header)
		}
		if err := f.SetSheetRow(sheet, cellName(1, row), &headers); err != nil {
			return nil, err
		}
		if len(headers) > 0 {
			style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
			if err != nil {
				return nil, err
			}
			if err := f.SetCellStyle(sheet, cellName(1, row), cellName(len(headers), row), style); err != nil {
				return nil, err
			}
		}
		row++

		for _, values := range table.Rows {
			if err := f.SetSheetRow(sheet, cellName(1, row), &values); err != nil {
				return nil, err
			}
			row++
		}
	}
	return f, nil
}

// Write 输出工作簿到 writer
func Write(w io.Writer, tables ...Table) error {
	f, err := BuildWorkbook(tables...)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// SaveFile 输出工作簿到目录，返回完整路径
func SaveFile(dir, name string, tables ...Table) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := BuildWorkbook(tables...)
	if err != nil {
		return "", err
	}
	defer f.Close()
	path := filepath.Join(dir, filepath.Base(name))
	if err := f.SaveAs(path); err != nil {
		return "", err
	}
	return path, nil
}

func cellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "A1"
	}
	return name
}
