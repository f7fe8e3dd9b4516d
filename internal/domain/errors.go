package domain

import "errors"

var (
	// ErrEmptyCart возвращается при попытке оформить продажу из пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock сигнализирует, что остатка товара не хватает для операции.
	ErrInsufficientStock = errors.New("insufficient stock")
	// Ошибка некорректного количества в позиции (<= 0).
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrCategoryNotFound возвращается, если категория не найдена.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrCategoryInUse запрещает удаление категории, на которую ссылаются товары.
	ErrCategoryInUse = errors.New("category is referenced by products")
	// ErrSaleNotFound возвращается, если продажа не найдена в журнале.
	ErrSaleNotFound = errors.New("sale not found")
	// ErrSaleVersionConflict сигнализирует о конфликте версий при сохранении продажи.
	ErrSaleVersionConflict = errors.New("sale version conflict")
	// ErrInvalidStatus: статус продажи вне перечисления.
	ErrInvalidStatus = errors.New("invalid sale status")
	// ErrValidation: общая ошибка валидации входных данных, оборачивается с деталями поля.
	ErrValidation = errors.New("validation failed")
	// ErrCartNotFound возвращается, если черновик корзины не найден или истёк.
	ErrCartNotFound = errors.New("cart not found")
	// Ошибка несоответствия итога продажи и суммы позиций.
	ErrTotalMismatch = errors.New("sale total does not match items sum")
	// Ошибка некорректной цены в позиции продажи.
	ErrItemPriceInvalid = errors.New("item price must be greater than zero")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired: пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired: пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyHashMismatch: ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyAlreadyExists: запрос с этим ключом уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound: запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrSaleVersionConflict)
}

// IsNotFound проверяет, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrSaleNotFound) ||
		errors.Is(err, ErrCartNotFound)
}

// IsIdempotencyConflict проверяет, что ключ уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
