package repository

import (
	"database/sql"
	"errors"
	"strings"

	"ddl-cache/internal/domain"
)

func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound("resource not found")
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return domain.ErrConflict("resource already exists")
	}
	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return domain.ErrValidation("referenced scan run does not exist")
	}
	return err
}
