// Package paymentreturn реализует детектор возврата пользователя из
// платёжного провайдера: разбор параметров редиректа, классификацию
// статуса и одноразовую защёлку, защищающую от повторного срабатывания.
package paymentreturn

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/magabrotheeeer/citycom/internal/lib/sl"
	"github.com/magabrotheeeer/citycom/internal/models"
)

// Ключи параметров, которые провайдер дописывает к адресу возврата.
// Статус и идентификатор транзакции приходят под несколькими именами.
var (
	statusKeys      = []string{"status", "collection_status"}
	transactionKeys = []string{"payment_id", "collection_id"}
	// Остальные параметры провайдера смысла не несут, но тоже вычищаются из URL.
	strippedKeys = []string{
		"status", "collection_status", "payment_id", "collection_id",
		"external_reference", "preference_id", "merchant_order_id", "payment_type",
	}
)

// Detector распознаёт событие возврата из платёжного провайдера.
type Detector struct {
	latch Latch
	log   *slog.Logger
}

// New создаёт детектор с заданной защёлкой.
func New(latch Latch, log *slog.Logger) *Detector {
	return &Detector{latch: latch, log: log}
}

func firstParam(q url.Values, keys []string) (string, bool) {
	for _, key := range keys {
		if q.Has(key) {
			return q.Get(key), true
		}
	}
	return "", false
}

// CleanURL возвращает копию адреса без параметров платёжного провайдера.
// Вычисляется до любой асинхронной работы: обработчик обязан перенаправить
// пользователя на этот адрес вне зависимости от итога сверки.
func CleanURL(u *url.URL) *url.URL {
	clean := *u
	q := clean.Query()
	for _, key := range strippedKeys {
		q.Del(key)
	}
	clean.RawQuery = q.Encode()
	return &clean
}

// Detect разбирает текущий адрес и решает, является ли эта загрузка
// возвратом из платёжного провайдера. Возвращает nil, если распознанных
// параметров нет или защёлка для этой транзакции уже захвачена ранее.
//
// Повторный вызов с тем же идентификатором транзакции возвращает nil:
// перезагрузка страницы или дублирующий вызов обработчика не могут
// воспроизвести то же событие.
func (d *Detector) Detect(ctx context.Context, u *url.URL) *models.PaymentReturnEvent {
	const op = "paymentreturn.Detect"
	log := d.log.With(slog.String("op", op))

	q := u.Query()
	rawStatus, hasStatus := firstParam(q, statusKeys)
	transactionID, hasTxn := firstParam(q, transactionKeys)
	if !hasStatus && !hasTxn {
		return nil
	}

	// Защёлка имеет смысл только при известной транзакции: возврат без
	// идентификатора не может повторно запустить сверку, а пустой ключ
	// был бы общим для всех таких возвратов сразу.
	if transactionID != "" {
		acquired, err := d.latch.Acquire(ctx, transactionID)
		if err != nil {
			// Защёлка недоступна: пропускаем событие дальше, идемпотентность
			// сверки на стороне бекенда не даст платежу примениться дважды.
			log.Warn("detection latch unavailable, proceeding", sl.Err(err), sl.Txn(transactionID))
		} else if !acquired {
			log.Info("duplicate payment return ignored", sl.Txn(transactionID))
			return nil
		}
	}

	event := &models.PaymentReturnEvent{
		TransactionID: transactionID,
		Status:        models.ClassifyProviderStatus(rawStatus),
		RawReference:  q.Get("external_reference"),
	}

	ref, err := models.DecodeReference(event.RawReference)
	if err != nil {
		// Некорректный blob не прерывает обнаружение: машина сверки
		// превратит его в итог error с идентификатором транзакции.
		log.Error("malformed external reference", sl.Err(err), sl.Txn(transactionID))
	} else {
		event.Reference = ref
	}

	log.Info("payment return detected",
		sl.Txn(transactionID), slog.String("status", string(event.Status)))
	return event
}
