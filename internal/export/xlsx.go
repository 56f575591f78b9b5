package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/geoextract/internal/entity"
)

const (
	recordsSheet  = "Records"
	coverageSheet = "Coverage"
)

// XLSX returns a workbook with a Records sheet (every record) and a
// Coverage sheet listing pages that produced no extraction.
func (s *Service) XLSX(rs entity.ResultSet) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), recordsSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	fields := fieldColumns(rs.Records)
	header := headers(fields)
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(recordsSheet, cell, h)
	}

	for i, r := range rs.Records {
		for j, v := range row(r, fields) {
			if v == nil {
				continue
			}
			ref, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(recordsSheet, ref, v); err != nil {
				return nil, fmt.Errorf("xlsx row %d: %w", i, err)
			}
		}
	}

	if len(header) > 0 {
		last, _ := excelize.ColumnNumberToName(len(header))
		_ = f.AutoFilter(recordsSheet, "A1:"+last+"1", nil)
		_ = f.SetColWidth(recordsSheet, "A", "A", 38) // document id
		_ = f.SetColWidth(recordsSheet, "D", "F", 16)
		_ = f.SetColWidth(recordsSheet, "I", "L", 14)
		_ = f.SetColWidth(recordsSheet, "M", "M", 60) // text span
	}

	if _, err := f.NewSheet(coverageSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	_ = f.SetCellValue(coverageSheet, "A1", "page_index")
	_ = f.SetCellValue(coverageSheet, "B1", "reason")
	if gap := rs.CoverageGap; gap != nil {
		for i, p := range gap.Pages {
			_ = f.SetCellValue(coverageSheet, fmt.Sprintf("A%d", i+2), p)
			_ = f.SetCellValue(coverageSheet, fmt.Sprintf("B%d", i+2), gap.Reasons[p])
		}
	}
	_ = f.SetColWidth(coverageSheet, "B", "B", 28)

	activeIndex, _ := f.GetSheetIndex(recordsSheet)
	f.SetActiveSheet(activeIndex)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"job_id", rs.JobID,
		"rows", len(rs.Records),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
