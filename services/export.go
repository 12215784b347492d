package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"recipe-vault-backend/internal/store"
	"recipe-vault-backend/models"
)

// ExportService renders the catalog as downloadable files. Recipes are
// schema-light JSON, so the flatteners below tolerate whatever shape a
// document actually has.
type ExportService struct {
	catalog *store.VersionedStore[models.Recipe]
}

// NewExportService creates an export service over the catalog document.
func NewExportService(catalog *store.VersionedStore[models.Recipe]) *ExportService {
	return &ExportService{catalog: catalog}
}

// ExportResult is a fully rendered download.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
	RecordCount int
}

type exportInfo struct {
	ExportDate   time.Time `json:"export_date"`
	TotalRecords int       `json:"total_records"`
	Format       string    `json:"format"`
}

type catalogExport struct {
	ExportInfo exportInfo               `json:"export_info"`
	Recipes    map[string]models.Recipe `json:"recipes"`
}

// Export renders the catalog in the requested format: "json", "excel"
// or "both" (a ZIP holding each).
func (es *ExportService) Export(ctx context.Context, format string) (*ExportResult, error) {
	catalog, _, err := es.catalog.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	keys := sortedRecipeKeys(catalog)
	stamp := time.Now().Format("20060102_150405")

	switch format {
	case "json":
		data, err := es.exportJSON(catalog, format)
		if err != nil {
			return nil, err
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("recipes_export_%s.json", stamp),
			ContentType: "application/json",
			Data:        data,
			RecordCount: len(catalog),
		}, nil

	case "excel":
		data, err := es.exportExcel(keys, catalog)
		if err != nil {
			return nil, err
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("recipes_export_%s.xlsx", stamp),
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
			RecordCount: len(catalog),
		}, nil

	case "both":
		data, err := es.exportBoth(keys, catalog)
		if err != nil {
			return nil, err
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("recipes_export_%s.zip", stamp),
			ContentType: "application/zip",
			Data:        data,
			RecordCount: len(catalog),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func (es *ExportService) exportJSON(catalog map[string]models.Recipe, format string) ([]byte, error) {
	payload := catalogExport{
		ExportInfo: exportInfo{
			ExportDate:   time.Now(),
			TotalRecords: len(catalog),
			Format:       format,
		},
		Recipes: catalog,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

func (es *ExportService) exportExcel(keys []string, catalog map[string]models.Recipe) ([]byte, error) {
	f, err := es.buildWorkbook(keys, catalog)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func (es *ExportService) exportBoth(keys []string, catalog map[string]models.Recipe) ([]byte, error) {
	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)

	jsonData, err := es.exportJSON(catalog, "both")
	if err != nil {
		return nil, err
	}
	jsonFile, err := zipWriter.Create("recipes_export.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON file in ZIP: %w", err)
	}
	if _, err := jsonFile.Write(jsonData); err != nil {
		return nil, fmt.Errorf("failed to write JSON data: %w", err)
	}

	excelData, err := es.exportExcel(keys, catalog)
	if err != nil {
		return nil, err
	}
	excelFile, err := zipWriter.Create("recipes_export.xlsx")
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel file in ZIP: %w", err)
	}
	if _, err := excelFile.Write(excelData); err != nil {
		return nil, fmt.Errorf("failed to write Excel data to ZIP: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close ZIP writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (es *ExportService) buildWorkbook(keys []string, catalog map[string]models.Recipe) (*excelize.File, error) {
	f := excelize.NewFile()

	sheetName := "Recipes"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"Key", "Title", "Servings", "Ingredients", "Directions",
		"Description", "Image", "Uploaded At",
	}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	withImages := 0
	for rowIdx, key := range keys {
		recipe := catalog[key]
		row := rowIdx + 2

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), key)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), recipe.Title)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), fieldString(recipe.Field("Servings")))
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), flattenIngredients(recipe.Field("Ingredients")))
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), flattenDirections(recipe.Field("Directions")))
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), fieldString(recipe.Field("Description")))
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), recipe.ImageURL)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), recipe.UploadedAt)

		if recipe.ImageURL != "" {
			withImages++
		}
	}

	for i := range headers {
		col := fmt.Sprintf("%c:%c", 'A'+i, 'A'+i)
		width := 15.0
		if headers[i] == "Ingredients" || headers[i] == "Directions" {
			width = 60.0
		}
		f.SetColWidth(sheetName, col, col, width)
	}

	summarySheetName := "Summary"
	if _, err := f.NewSheet(summarySheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}

	summaryData := [][]interface{}{
		{"Export Information", ""},
		{"Export Date", time.Now().Format("2006-01-02 15:04:05")},
		{"Total Recipes", len(catalog)},
		{"Recipes With Selected Image", withImages},
		{"Recipes Awaiting Image Pick", len(catalog) - withImages},
	}
	for i, rowData := range summaryData {
		for j, cell := range rowData {
			cellRef := fmt.Sprintf("%c%d", 'A'+j, i+1)
			f.SetCellValue(summarySheetName, cellRef, cell)
		}
	}

	return f, nil
}

// sortedRecipeKeys orders keys numerically; anything non-numeric sorts
// after the numbers.
func sortedRecipeKeys(catalog map[string]models.Recipe) []string {
	keys := make([]string, 0, len(catalog))
	for key := range catalog {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, aErr := strconv.Atoi(keys[i])
		b, bErr := strconv.Atoi(keys[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// fieldString renders a raw JSON field as cell text.
func fieldString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}

	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// flattenIngredients renders the ingredient object (possibly with one
// nested section level, or a legacy array) as "name: amount" pairs.
func flattenIngredients(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}

	switch v := value.(type) {
	case map[string]any:
		var pairs []string
		for _, name := range sortedMapKeys(v) {
			switch entry := v[name].(type) {
			case map[string]any:
				for _, sub := range sortedMapKeys(entry) {
					pairs = append(pairs, fmt.Sprintf("%s - %s: %v", name, sub, entry[sub]))
				}
			default:
				pairs = append(pairs, fmt.Sprintf("%s: %v", name, entry))
			}
		}
		return joinLines(pairs)
	case []any:
		var items []string
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
		return joinLines(items)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// flattenDirections renders the directions list as numbered steps.
func flattenDirections(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}

	switch v := value.(type) {
	case []any:
		var steps []string
		for i, step := range v {
			steps = append(steps, fmt.Sprintf("%d. %v", i+1, step))
		}
		return joinLines(steps)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func sortedMapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func joinLines(lines []string) string {
	var b bytes.Buffer
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}
	return b.String()
}
