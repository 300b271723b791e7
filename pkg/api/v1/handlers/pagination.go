package handlers

import "github.com/elecmate/rams/internal/db/models"

// getPaginationOptions returns a ListOptions struct with validated pagination parameters
func getPaginationOptions(page int, status *models.JobStatus) *models.ListOptions {
	if page < 1 {
		page = 1
	}

	return &models.ListOptions{
		Limit:  models.DefaultLimit,
		Offset: (page - 1) * models.DefaultLimit,
		Status: status,
	}
}
