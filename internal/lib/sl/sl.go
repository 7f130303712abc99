// Package sl содержит вспомогательные функции для работы с логгером slog.
// Основная цель — упростить формирование структурированных полей лога,
// например, для передачи информации об ошибках и идентификаторов транзакций.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
// Удобно использовать в логировании для единообразного вывода ошибок.
//
// Пример:
//
//	log.Error("failed to verify payment", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Txn возвращает slog.Attr с ключом "transaction_id".
// Идентификатор транзакции должен сопровождать каждую запись лога сверки,
// чтобы платеж можно было разобрать вручную по обращению в поддержку.
func Txn(id string) slog.Attr {
	return slog.Attr{
		Key:   "transaction_id",
		Value: slog.StringValue(id),
	}
}
