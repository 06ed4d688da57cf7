// Package export writes stored records to CSV and XLSX files.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/qda-harvester/internal/model"
	"github.com/sells-group/qda-harvester/internal/store"
)

// SheetName is the worksheet WriteXLSX fills.
const SheetName = "records"

// Row renders f in the column order of store.Columns.
func Row(f *model.File) []string {
	return []string{
		strconv.FormatInt(f.ID, 10),
		f.SourceName,
		f.SourceURL,
		f.DownloadURL,
		f.FileName,
		f.FileType,
		f.FileHash,
		strconv.FormatInt(f.FileSizeBytes, 10),
		f.LocalPath,
		f.LocalDirectory,
		f.LicenseType,
		f.LicenseURL,
		f.Title,
		f.Description,
		f.Authors,
		f.DatePublished,
		f.Tags,
		f.Keywords,
		f.KindOfData,
		f.Language,
		f.Software,
		f.GeographicCoverage,
		f.ContentType,
		f.FriendlyType,
		strconv.FormatBool(f.Restricted),
		f.APIChecksum,
		f.Depositor,
		f.Producer,
		f.Publication,
		f.DateOfCollection,
		f.TimePeriodCovered,
		f.UploaderName,
		f.UploaderEmail,
		strconv.FormatBool(f.IsQDAFile),
		f.Notes,
		timestamp(f.DownloadedAt),
		timestamp(&f.CreatedAt),
	}
}

func timestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// WriteCSV writes a header row and one row per record to w.
func WriteCSV(w io.Writer, records []model.File) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(store.Columns()); err != nil {
		return eris.Wrap(err, "export: write CSV header")
	}
	for i := range records {
		if err := cw.Write(Row(&records[i])); err != nil {
			return eris.Wrapf(err, "export: write CSV row %d", records[i].ID)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush CSV")
	}
	return nil
}

// WriteXLSX saves the records to a new workbook at path.
func WriteXLSX(path string, records []model.File) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addRow(sheet, store.Columns())
	for i := range records {
		addRow(sheet, Row(&records[i]))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}
