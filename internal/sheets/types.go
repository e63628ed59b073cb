package sheets

// listSpreadsheetsResponse from GET /v1/spreadsheets
type listSpreadsheetsResponse struct {
	Spreadsheets []spreadsheetInfo `json:"spreadsheets"`
}

// spreadsheetInfo identifies one remote spreadsheet.
type spreadsheetInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// createSpreadsheetRequest for POST /v1/spreadsheets
type createSpreadsheetRequest struct {
	Title  string   `json:"title"`
	Header []string `json:"header"`
}

// createSpreadsheetResponse from POST /v1/spreadsheets
type createSpreadsheetResponse struct {
	ID string `json:"id"`
}

// rowsResponse from GET /v1/spreadsheets/{id}/rows. Rows carries the whole
// sheet including the header row; data rows start at index 1.
type rowsResponse struct {
	Rows [][]string `json:"rows"`
}

// appendRowsRequest for POST /v1/spreadsheets/{id}/rows:append
type appendRowsRequest struct {
	Rows [][]string `json:"rows"`
}

// updateRowRequest for PUT /v1/spreadsheets/{id}/rows/{n}
type updateRowRequest struct {
	Row []string `json:"row"`
}
