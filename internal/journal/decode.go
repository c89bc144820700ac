package journal

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// DecodeRawTrades разбирает выгрузку журнала: массив записей или объект
// {"trades": [...]}.
//
// Запись, которую не удалось разобрать, возвращается пустой (и будет отклонена
// нормализатором), а текст ошибки попадает в malformed по ее индексу.
// Ошибка возвращается только если сам контейнер не является массивом или объектом.
func DecodeRawTrades(data []byte) (raws []RawTrade, malformed map[int]string, err error) {
	data = bytes.TrimSpace(data)

	var items []jsoniter.RawMessage
	if len(data) > 0 && data[0] == '{' {
		var wrapper struct {
			Trades []jsoniter.RawMessage `json:"trades"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		items = wrapper.Trades
	} else if err := json.Unmarshal(data, &items); err != nil {
		return nil, nil, fmt.Errorf("expected an array of trades or {\"trades\": [...]}: %w", err)
	}

	raws = make([]RawTrade, len(items))
	malformed = make(map[int]string)
	for i, item := range items {
		if err := json.Unmarshal(item, &raws[i]); err != nil {
			raws[i] = RawTrade{}
			malformed[i] = err.Error()
		}
	}
	return raws, malformed, nil
}

// ExplainRejected заменяет причину отклонения для записей, которые не удалось
// разобрать, на исходную ошибку разбора
func ExplainRejected(rejected []RejectedRecord, malformed map[int]string) {
	for i := range rejected {
		if reason, ok := malformed[rejected[i].Index]; ok {
			rejected[i].Reason = reason
		}
	}
}
