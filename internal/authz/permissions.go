// Файл: internal/authz/permissions.go
// Централизованная карта прав. Единственный источник истины: какая кнопка
// или callback требует какого ключа. Добавил кнопку — добавь строку сюда,
// столбец в книге появится при следующей выгрузке матрицы.
package authz

// Роли-флаги. Это столбцы книги, а не кнопки.
const (
	RoleSysadmin        = "🔧 Сис.Админ"
	RoleReceiverKitchen = "📬 Получатель (Кухня)"
	RoleReceiverBar     = "📬 Получатель (Бар)"
	RoleReceiverPastry  = "📬 Получатель (Кондитерка)"
	RoleStock           = "📦 Остатки"
	RoleStoplist        = "🚫 Стоп-лист"
	RoleAccountant      = "📑 Бухгалтер"
)

var RoleKeys = []string{
	RoleSysadmin,
	RoleReceiverKitchen, RoleReceiverBar, RoleReceiverPastry,
	RoleStock, RoleStoplist, RoleAccountant,
}

// Гранулярные права: одна операция — один столбец с отметкой.
// Админы имеют все права автоматически.
const (
	PermWriteoffCreate  = "📝 Создать списание"
	PermWriteoffHistory = "📝 История списаний"
	PermWriteoffApprove = "📝 Одобрение списаний"

	PermInvoiceTemplate = "📦 Создать шаблон"
	PermInvoiceCreate   = "📦 Создать накладную"

	PermRequestCreate  = "📋 Создать заявку"
	PermRequestHistory = "📋 История заявок"
	PermRequestApprove = "📋 Одобрение заявок"

	PermReportView    = "📊 Просмотр отчётов"
	PermReportEditMin = "📊 Изменение мин.остатков"

	PermOCRUpload = "📑 Загрузка OCR"
	PermOCRSend   = "📑 Отправка в iiko"

	PermSettings = "⚙️ Настройки"
)

// Порядок списка задаёт порядок столбцов книги.
var PermissionKeys = []string{
	PermWriteoffCreate, PermWriteoffHistory, PermWriteoffApprove,
	PermInvoiceTemplate, PermInvoiceCreate,
	PermRequestCreate, PermRequestHistory, PermRequestApprove,
	PermReportView, PermReportEditMin,
	PermOCRUpload, PermOCRSend,
	PermSettings,
}

// AllColumnKeys — роли + права, полный набор столбцов матрицы.
var AllColumnKeys = append(append([]string{}, RoleKeys...), PermissionKeys...)

// MenuButtonGroups: кнопка главного меню видна, если есть хотя бы одно
// право из группы.
var MenuButtonGroups = map[string][]string{
	"📝 Списания":  {PermWriteoffCreate, PermWriteoffHistory, PermWriteoffApprove},
	"📦 Накладные": {PermInvoiceTemplate, PermInvoiceCreate},
	"📋 Заявки":    {PermRequestCreate, PermRequestHistory, PermRequestApprove},
	"📊 Отчёты":    {PermReportView, PermReportEditMin},
	"📑 Документы": {PermOCRUpload, PermOCRSend},
	"⚙️ Настройки": {PermSettings},
}

// TextPermissions: reply-кнопка -> требуемое право.
// Middleware сверяет текст сообщения до вызова хэндлера.
var TextPermissions = map[string]string{
	"📝 Создать списание": PermWriteoffCreate,
	"🗂 История списаний": PermWriteoffHistory,

	"📑 Создать шаблон накладной": PermInvoiceTemplate,
	"📦 Создать по шаблону":       PermInvoiceCreate,

	"✏️ Создать заявку":  PermRequestCreate,
	"📒 История заявок":  PermRequestHistory,
	"📬 Входящие заявки": PermRequestApprove,

	"📊 Мин. остатки по складам": PermReportView,
	"✏️ Изменить мин. остаток":   PermReportEditMin,

	"📤 Загрузить накладные": PermOCRUpload,
	"✅ Маппинг готов":        PermOCRUpload,

	"⚙️ Настройки":      PermSettings,
	"🔄 Синхронизация":   PermSettings,
	"📤 Выгрузки":        PermSettings,
	"☁️ Облачный вебхук": PermSettings,

	"📤 Номенклатура → книга": PermSettings,
	"📥 Мин. остатки → БД":    PermSettings,
	"⚡ Синхр. ВСЁ":           PermSettings,
	"🔄 Синхр. ВСЁ POS":       PermSettings,
	"💹 Синхр. ВСЁ финансы":   PermSettings,
	"📋 Синхр. справочники":   PermSettings,
	"📦 Синхр. номенклатуру":  PermSettings,
	"🏢 Синхр. подразделения": PermSettings,

	"📝 Списания":  PermWriteoffCreate,
	"📦 Накладные": PermInvoiceCreate,
	"📋 Заявки":    PermRequestCreate,
	"📊 Отчёты":    PermReportView,
	"📑 Документы": PermOCRUpload,
}

// CallbackPermissions: префикс callback data -> требуемое право.
var CallbackPermissions = map[string]string{
	"iiko_invoice_send:":   PermOCRSend,
	"iiko_invoice_cancel:": PermOCRSend,
	"mapping_done":         PermOCRUpload,

	"woa_approve:": PermWriteoffApprove,
	"woa_reject:":  PermWriteoffApprove,
	"woa_edit:":    PermWriteoffApprove,

	"req_approve:": PermRequestApprove,
	"req_edit:":    PermRequestApprove,
	"req_reject:":  PermRequestApprove,
}
