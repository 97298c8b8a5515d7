// access.go — Access Control Evaluator.
package service

import "github.com/bigkaa/gofilevault/internal/domain/model"

// CanRead решает, разрешено ли чтение записи для caller.
// callerID пуст для анонимного вызова.
//
// Чтение разрешено тогда и только тогда, когда запись публична
// либо caller — её владелец. Предикат чистый и одинаков для
// любого транспорта.
func CanRead(entry *model.FileEntry, callerID string) bool {
	if entry.IsPublic {
		return true
	}
	return callerID != "" && callerID == entry.UserID
}
