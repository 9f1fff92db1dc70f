// Package services содержит ошибки, общие для бизнес-сервисов подписок.
package services

import "errors"

// ErrForbidden возвращается, когда пользователь пытается изменить чужую учётную запись.
var ErrForbidden = errors.New("user id mismatch")

// Authorize проверяет, что запрос выполняет сам владелец учётной записи.
func Authorize(userID, requestingUserID string) error {
	if userID == "" || userID != requestingUserID {
		return ErrForbidden
	}
	return nil
}
