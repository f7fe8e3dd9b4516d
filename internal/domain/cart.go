package domain

// CartItem: строка черновика корзины. Цена не хранится: итог корзины
// всегда считается по текущему каталогу.
type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}
