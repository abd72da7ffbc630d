package iiko

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Внутри айтема встречаются одноимённые вложенные теги-флаги.
// Они должны стать полями, а не новыми айтемами.
const suppliersXML = `<?xml version="1.0"?>
<employees>
  <employee>
    <id>aaa-111</id>
    <name>ООО Продукты</name>
    <supplier>true</supplier>
    <employee>false</employee>
    <client>false</client>
  </employee>
  <employee>
    <id>bbb-222</id>
    <name>ИП Иванов</name>
    <supplier>true</supplier>
    <employee>false</employee>
  </employee>
</employees>`

func TestParseFlatItemsXML(t *testing.T) {
	items, err := parseFlatItemsXML([]byte(suppliersXML), "employee")
	require.NoError(t, err)
	require.Len(t, items, 2, "вложенные теги-флаги не должны считаться айтемами")

	assert.Equal(t, "aaa-111", items[0]["id"])
	assert.Equal(t, "ООО Продукты", items[0]["name"])
	assert.Equal(t, "false", items[0]["employee"], "вложенный флаг становится полем")
	assert.Equal(t, "true", items[1]["supplier"])
}

const departmentsXML = `<?xml version="1.0"?>
<corporateItemDtoes>
  <corporateItemDto>
    <id>dep-1</id>
    <parentId>root-0</parentId>
    <name>Ресторан Центр</name>
    <type>DEPARTMENT</type>
    <info><extra>мусор</extra></info>
  </corporateItemDto>
  <corporateItemDto>
    <id>dep-2</id>
    <name>Ресторан Парк</name>
    <type>DEPARTMENT</type>
  </corporateItemDto>
</corporateItemDtoes>`

func TestParseCorporateItemsXML(t *testing.T) {
	items, err := parseCorporateItemsXML([]byte(departmentsXML))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "dep-1", items[0]["id"])
	assert.Equal(t, "Ресторан Центр", items[0]["name"])
	_, hasInfo := items[0]["info"]
	assert.False(t, hasInfo, "поле с вложенными элементами не листовое")
	assert.Equal(t, "dep-2", items[1]["id"])
}

const olapXML = `<rows>
  <r>
    <Account.Name>Хоз. товары (Центр)</Account.Name>
    <Product.TopParent>Расходные материалы</Product.TopParent>
    <Product.Name>Перчатки</Product.Name>
    <FinalBalance.Amount>-12.5</FinalBalance.Amount>
    <FinalBalance.Money>-250</FinalBalance.Money>
  </r>
  <r>
    <Account.Name>Бар (Центр)</Account.Name>
    <Product.Name>Трубочки</Product.Name>
    <FinalBalance.Amount></FinalBalance.Amount>
  </r>
</rows>`

func TestParseOlapRowsXML(t *testing.T) {
	rows, err := parseOlapRowsXML([]byte(olapXML))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Хоз. товары (Центр)", rows[0]["Account.Name"])
	assert.Equal(t, float64(-12.5), rows[0]["FinalBalance.Amount"])
	assert.Equal(t, int64(-250), rows[0]["FinalBalance.Money"])
	assert.Nil(t, rows[1]["FinalBalance.Amount"], "пустое значение становится nil")
}

func testInvoice() *InvoiceDocument {
	return &InvoiceDocument{
		DocumentNumber: "BOT-DEADBEEF",
		DateIncoming:   "2026-08-24T12:00:00",
		Status:         "NEW",
		Comment:        "Заявка №7 (Автор: Иванов И.)",
		StoreID:        "store-1",
		CounteragentID: "contr-1",
		Items: []DocumentItem{
			{ProductID: "prod-1", Amount: decimal.RequireFromString("2.5"), MeasureUnitID: "unit-kg",
				Price: decimal.RequireFromString("100"), Sum: decimal.RequireFromString("250")},
		},
	}
}

func TestBuildOutgoingInvoiceXML(t *testing.T) {
	xml := buildOutgoingInvoiceXML(testInvoice())

	assert.Contains(t, xml, "<defaultStoreId>store-1</defaultStoreId>")
	assert.Contains(t, xml, "<counteragentId>contr-1</counteragentId>")
	assert.Contains(t, xml, "<productId>prod-1</productId>")
	assert.NotContains(t, xml, "<supplier>")
	assert.Contains(t, xml, "<useDefaultDocumentTime>false</useDefaultDocumentTime>")
}

func TestBuildIncomingInvoiceXML(t *testing.T) {
	xml := buildIncomingInvoiceXML(testInvoice())

	// Приходная использует другие имена тегов, чем расходная.
	assert.Contains(t, xml, "<defaultStore>store-1</defaultStore>")
	assert.Contains(t, xml, "<supplier>contr-1</supplier>")
	assert.Contains(t, xml, "<product>prod-1</product>")
	assert.Contains(t, xml, "<store>store-1</store>")
	assert.NotContains(t, xml, "<counteragentId>")
}

func TestParseImportResult(t *testing.T) {
	ok := parseImportResult([]byte(`<document><valid>true</valid><documentNumber>N-1</documentNumber></document>`))
	assert.True(t, ok.OK)
	assert.Equal(t, "N-1", ok.DocumentNumber)

	bad := parseImportResult([]byte(`<document><valid>false</valid><errorMessage>нет товара</errorMessage><documentNumber>N-2</documentNumber></document>`))
	assert.False(t, bad.OK)
	assert.Equal(t, "нет товара", bad.Error)
	assert.Equal(t, "N-2", bad.DocumentNumber)

	// Сервер ответил не XML — считаем успехом, валидация не сработала бы молча.
	plain := parseImportResult([]byte("OK"))
	assert.True(t, plain.OK)
}

func TestStepBackoff(t *testing.T) {
	b := &stepBackoff{delays: getRetryDelays}
	d1, stop1 := b.Next()
	d2, stop2 := b.Next()
	d3, stop3 := b.Next()
	_, stop4 := b.Next()

	assert.False(t, stop1)
	assert.False(t, stop2)
	assert.False(t, stop3)
	assert.True(t, stop4, "после трёх задержек повторы заканчиваются")
	assert.Less(t, d1, d2)
	assert.Less(t, d2, d3)
}
