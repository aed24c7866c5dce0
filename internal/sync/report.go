package sync

// EntitySyncResult counts the outcome of one entity's sync pass. Errors hold
// human-readable per-row or per-batch failure descriptions; a non-empty list
// does not mean the pass failed, only that some rows will retry next pass.
type EntitySyncResult struct {
	Uploaded   int      `json:"uploaded"`
	Downloaded int      `json:"downloaded"`
	Errors     []string `json:"errors,omitempty"`
}

func (r *EntitySyncResult) addError(message string) {
	r.Errors = append(r.Errors, message)
}

// SyncReport aggregates a full sync pass. SyncAll never returns an error;
// callers inspect Success and the error lists instead.
type SyncReport struct {
	Success        bool             `json:"success"`
	Message        string           `json:"message"`
	Users          EntitySyncResult `json:"users"`
	Products       EntitySyncResult `json:"products"`
	Transactions   EntitySyncResult `json:"transactions"`
	StockMovements EntitySyncResult `json:"stock_movements"`
	Settings       EntitySyncResult `json:"settings"`
}

func (r *SyncReport) entityResults() []*EntitySyncResult {
	return []*EntitySyncResult{
		&r.Users, &r.Products, &r.Transactions, &r.StockMovements, &r.Settings,
	}
}

// TotalUploaded sums uploads across all entities.
func (r *SyncReport) TotalUploaded() int {
	total := 0
	for _, entity := range r.entityResults() {
		total += entity.Uploaded
	}
	return total
}

// TotalDownloaded sums downloads across all entities.
func (r *SyncReport) TotalDownloaded() int {
	total := 0
	for _, entity := range r.entityResults() {
		total += entity.Downloaded
	}
	return total
}

// TotalErrors counts errors across all entities.
func (r *SyncReport) TotalErrors() int {
	total := 0
	for _, entity := range r.entityResults() {
		total += len(entity.Errors)
	}
	return total
}

// AllErrors concatenates every entity's error list in sync order.
func (r *SyncReport) AllErrors() []string {
	var all []string
	for _, entity := range r.entityResults() {
		all = append(all, entity.Errors...)
	}
	return all
}
