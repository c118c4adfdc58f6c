package service

import (
	"bytes"
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/bitfantasy/nimo-warranty/internal/warranty/apperr"
)

func gbk(t *testing.T, s string) *bytes.Reader {
	t.Helper()
	b, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(s))
	if err != nil {
		t.Fatalf("encode gbk: %v", err)
	}
	return bytes.NewReader(b)
}

func TestImportDeliveryNote(t *testing.T) {
	f := newFixture(t)
	note := "配件类型,数量,序列号\n" +
		tcBattery + ",2,BAT-SN-1|BAT-SN-2\n" +
		"\n" +
		tcPump + ",3\n"

	res, err := f.svc.Ledger.ImportDeliveryNote(f.ctx, whCenter, gbk(t, note), staff)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Rows != 2 || res.Quantity != 5 {
		t.Fatalf("unexpected result rows=%d qty=%d", res.Rows, res.Quantity)
	}
	if got := res.Items[0].Components[1].SerialNumber; got != "BAT-SN-2" {
		t.Errorf("expected supplied serial, got %s", got)
	}
	f.assertStock(whCenter, tcBattery, 2, 0)
	f.assertStock(whCenter, tcPump, 3, 0)
}

func TestImportDeliveryNote_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	note := "配件类型,数量\n" +
		tcBattery + ",2\n" +
		"tc-unknown,1\n"

	_, err := f.svc.Ledger.ImportDeliveryNote(f.ctx, whCenter, gbk(t, note), staff)
	assertKind(t, err, apperr.KindNotFound)
	if _, err := f.store.Stocks().GetForUpdate(f.ctx, whCenter, tcBattery); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected first row rolled back, got %v", err)
	}
}

func TestImportDeliveryNote_BadRows(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"header only":     "配件类型,数量\n",
		"bad quantity":    "配件类型,数量\n" + tcBattery + ",两个\n",
		"serial mismatch": "配件类型,数量,序列号\n" + tcBattery + ",2,ONLY-ONE\n",
		"missing column":  "配件类型,数量\n" + tcBattery + "\n",
	}
	for name, note := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Ledger.ImportDeliveryNote(f.ctx, whCenter, gbk(t, note), staff)
			assertKind(t, err, apperr.KindValidation)
		})
	}
}
