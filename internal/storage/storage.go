// Package storage содержит общие для всех реализаций хранилища ошибки.
// Конкретные реализации находятся в подпакетах postgresql и mongodb.
package storage

import "errors"

var (
	// ErrUserNotFound учётная запись не найдена.
	ErrUserNotFound = errors.New("user not found")
	// ErrPurchaseNotFound покупка с таким идентификатором транзакции не найдена.
	ErrPurchaseNotFound = errors.New("purchase not found")
)
