package validation

import (
	"fmt"
	"regexp"
)

// TableNamePattern определяет допустимый формат имени таблицы
// Только строчные латинские буквы (a-z) и нижнее подчеркивание (_)
// Длина: 2-64 символа
var TableNamePattern = regexp.MustCompile(`^[a-z][a-z_]{1,63}$`)

// RecordIDPattern определяет допустимый формат идентификатора записи
// Буквы, цифры, дефис и нижнее подчеркивание, 1-128 символов
var RecordIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

const (
	// MaxTableNameLen максимальная длина имени таблицы
	MaxTableNameLen = 64
	// MaxRecordIDLen максимальная длина record id
	MaxRecordIDLen = 128
)

// ValidateTableName проверяет, что имя таблицы соответствует требованиям
func ValidateTableName(table string) error {
	if table == "" {
		return fmt.Errorf("table name cannot be empty")
	}

	if len(table) > MaxTableNameLen {
		return fmt.Errorf("table name must not exceed %d characters", MaxTableNameLen)
	}

	if !TableNamePattern.MatchString(table) {
		return fmt.Errorf("table name can only contain lowercase letters (a-z) and underscores (_)")
	}

	return nil
}

// ValidateRecordID проверяет, что record id соответствует требованиям
// Клиенты генерируют id сами (uuid или временные id вида WO-temp-1),
// поэтому допускаются буквы, цифры, дефис и подчеркивание
func ValidateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	if len(id) > MaxRecordIDLen {
		return fmt.Errorf("record id must not exceed %d characters", MaxRecordIDLen)
	}

	if !RecordIDPattern.MatchString(id) {
		return fmt.Errorf("record id can only contain letters, numbers, hyphens and underscores")
	}

	return nil
}
