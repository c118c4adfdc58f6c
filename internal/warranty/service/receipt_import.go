package service

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
)

// ImportResult 送货单导入结果
type ImportResult struct {
	Rows     int             `json:"rows"`
	Quantity int             `json:"quantity"`
	Items    []*IntakeResult `json:"items"`
}

// ImportDeliveryNote 导入供应商送货单（GBK 编码 CSV）。
// 首行为表头；每行：配件类型ID,数量[,序列号|序列号...]。整单在一个事务内入库，任一行失败全部回滚。
func (l *StockLedger) ImportDeliveryNote(ctx context.Context, warehouseID string, r io.Reader, actorID string) (*ImportResult, error) {
	reqs, err := parseDeliveryNote(r, warehouseID)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, apperr.Validation("送货单没有数据行")
	}

	result := &ImportResult{}
	err = l.run(ctx, func(tx *Tx) error {
		for _, req := range reqs {
			item, err := l.intake(ctx, tx, req, actorID)
			if err != nil {
				return err
			}
			result.Items = append(result.Items, item)
			result.Quantity += req.Quantity
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Rows = len(reqs)
	l.logger.Info("delivery note imported",
		zap.String("warehouse_id", warehouseID),
		zap.Int("rows", result.Rows),
		zap.Int("quantity", result.Quantity))
	return result, nil
}

func parseDeliveryNote(r io.Reader, warehouseID string) ([]IntakeRequest, error) {
	// GBK → UTF-8
	reader := csv.NewReader(transform.NewReader(r, simplifiedchinese.GBK.NewDecoder()))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var reqs []IntakeRequest
	lineNo := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Validation("送货单格式错误: %v", err)
		}
		lineNo++
		if lineNo == 1 || isBlank(record) {
			continue
		}
		if len(record) < 2 {
			return nil, apperr.Validation("第%d行: 至少需要配件类型与数量", lineNo)
		}
		qty, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, apperr.Validation("第%d行: 数量无效 %q", lineNo, record[1])
		}
		req := IntakeRequest{
			WarehouseID:     warehouseID,
			TypeComponentID: strings.TrimSpace(record[0]),
			Quantity:        qty,
		}
		if len(record) > 2 && strings.TrimSpace(record[2]) != "" {
			for _, sn := range strings.Split(record[2], "|") {
				req.SerialNumbers = append(req.SerialNumbers, strings.TrimSpace(sn))
			}
		}
		if err := req.validate(); err != nil {
			return nil, apperr.Validation("第%d行: %s", lineNo, err.Error())
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
