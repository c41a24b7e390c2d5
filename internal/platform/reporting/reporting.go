// Package reporting serves predefined aggregate measures over the
// program tables for dashboard charts.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/beanphv/QBR-Dashboard/internal/domain/program"
	"github.com/beanphv/QBR-Dashboard/internal/platform/auth"
)

// MeasureDefinition defines a reporting measure with its SQL query. The
// query takes the optional quarter ($1) and year ($2) filters; a NULL
// argument disables the filter.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"-"`
	Parameters  []string `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

var periodParams = []string{"quarter", "year"}

const periodFilter = `($1::text IS NULL OR quarter = $1) AND ($2::int IS NULL OR year = $2)`

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "savings-by-period",
		Name:        "Savings by Period",
		Description: "Hospital count, total savings, total drug spend and average savings-to-spend percent per quarter",
		SQL: `SELECT quarter, year, COUNT(*) AS hospitals,
			SUM(savings) AS total_savings, SUM(drug_spend) AS total_drug_spend,
			ROUND(AVG(savings_to_spend_pct), 2) AS avg_savings_to_spend_pct
			FROM hospital_metrics WHERE ` + periodFilter + `
			GROUP BY year, quarter ORDER BY year DESC, quarter DESC`,
		Parameters: periodParams,
	},
	{
		ID:          "top-hospitals-by-savings",
		Name:        "Top Hospitals by Savings",
		Description: "The ten hospital quarters with the highest 340B savings",
		SQL: `SELECT h.name, h.pid, m.quarter, m.year, m.savings, m.drug_spend, m.savings_to_spend_pct
			FROM hospital_metrics m JOIN hospital h ON h.id = m.hospital_id
			WHERE ($1::text IS NULL OR m.quarter = $1) AND ($2::int IS NULL OR m.year = $2)
			ORDER BY m.savings DESC, h.name LIMIT 10`,
		Parameters: periodParams,
	},
	{
		ID:          "pharmacy-profit-by-period",
		Name:        "Pharmacy Profit by Period",
		Description: "Contract pharmacy scripts and profit totals per quarter",
		SQL: `SELECT quarter, year, COUNT(*) AS pharmacies, SUM(scripts) AS total_scripts,
			SUM(current_profit) AS total_current_profit,
			SUM(ep_added_340b_benefit) AS total_340b_benefit,
			ROUND(AVG(brand_profit_avg), 2) AS avg_brand_profit,
			ROUND(AVG(generic_profit_avg), 2) AS avg_generic_profit
			FROM pharmacy_metrics WHERE ` + periodFilter + `
			GROUP BY year, quarter ORDER BY year DESC, quarter DESC`,
		Parameters: periodParams,
	},
	{
		ID:          "qualification-averages",
		Name:        "Qualification Averages",
		Description: "Average qualified and disqualified percent for hospitals and pharmacies per quarter",
		SQL: `SELECT 'hospital' AS owner_type, quarter, year, COUNT(*) AS owners,
			ROUND(AVG(qualified_pct), 2) AS avg_qualified_pct,
			ROUND(AVG(disqualified_pct), 2) AS avg_disqualified_pct
			FROM hospital_qualification WHERE ` + periodFilter + `
			GROUP BY year, quarter
			UNION ALL
			SELECT 'pharmacy', quarter, year, COUNT(*),
			ROUND(AVG(qualified_pct), 2), ROUND(AVG(disqualified_pct), 2)
			FROM pharmacy_qualification WHERE ` + periodFilter + `
			GROUP BY year, quarter
			ORDER BY year DESC, quarter DESC, owner_type`,
		Parameters: periodParams,
	},
	{
		ID:          "upload-activity",
		Name:        "Upload Activity",
		Description: "Workbook uploads by status with processed row totals",
		SQL: `SELECT status, COUNT(*) AS uploads, COALESCE(SUM(records_processed), 0) AS records_processed,
			MAX(created_at) AS last_upload_at
			FROM data_upload WHERE ` + periodFilter + `
			GROUP BY status ORDER BY status`,
		Parameters: periodParams,
	},
}

// Querier runs a measure query. *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	db Querier
}

func NewHandler(db Querier) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole(auth.RoleAdmin, auth.RoleAnalyst))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measure := FindMeasure(c.Param("id"))
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	params := map[string]string{}
	for _, p := range measure.Parameters {
		if v := strings.TrimSpace(c.QueryParam(p)); v != "" {
			params[p] = v
		}
	}
	args, err := periodArgs(params)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	results, err := h.executeSQL(c.Request().Context(), measure.SQL, args...)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}

	return c.JSON(http.StatusOK, MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now(),
		Results:     results,
		Parameters:  params,
	})
}

// periodArgs converts the quarter and year parameters to query arguments,
// normalizing the quarter. Missing parameters become NULL. params is
// updated with the normalized values.
func periodArgs(params map[string]string) ([]interface{}, error) {
	var quarter, year interface{}
	if q, ok := params["quarter"]; ok {
		norm, err := program.ParseQuarter(q)
		if err != nil {
			return nil, errors.New("invalid quarter")
		}
		params["quarter"] = norm
		quarter = norm
	}
	if y, ok := params["year"]; ok {
		n, err := strconv.Atoi(y)
		if err != nil || n <= 0 {
			return nil, errors.New("invalid year")
		}
		year = n
	}
	return []interface{}{quarter, year}, nil
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (h *Handler) executeSQL(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := h.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	results := []map[string]interface{}{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
