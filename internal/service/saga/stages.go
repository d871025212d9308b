package saga

import "github.com/vladislavdragonenkov/retailops/internal/domain"

// Каждый шаг жизненного цикла, отдельный тип. Драйверы принимают только
// тип предыдущего шага, поэтому вызвать approve до quality check нельзя:
// такой код не скомпилируется. Значения создаются только внутри пакета.

// CreatedReturn: возврат создан.
type CreatedReturn struct{ req domain.ReturnRequest }

// InspectedReturn: проверка качества пройдена.
type InspectedReturn struct{ req domain.ReturnRequest }

// ApprovedReturn: возврат одобрен.
type ApprovedReturn struct{ req domain.ReturnRequest }

// ProcessedReturn: возврат проведён, остатки восстановлены.
type ProcessedReturn struct{ req domain.ReturnRequest }

// CompletedReturn: возврат закрыт; только с ним можно создать возврат средств.
type CompletedReturn struct{ req domain.ReturnRequest }

func (r CreatedReturn) Request() domain.ReturnRequest   { return r.req }
func (r InspectedReturn) Request() domain.ReturnRequest { return r.req }
func (r ApprovedReturn) Request() domain.ReturnRequest  { return r.req }
func (r ProcessedReturn) Request() domain.ReturnRequest { return r.req }
func (r CompletedReturn) Request() domain.ReturnRequest { return r.req }

// CreatedRefund: возврат средств создан.
type CreatedRefund struct {
	refund    domain.RefundRequest
	reference string
}

// ProcessingRefund: возврат средств в обработке.
type ProcessingRefund struct {
	refund    domain.RefundRequest
	reference string
}

// CompletedRefund: деньги выданы; только с ним создаётся заказ обмена.
type CompletedRefund struct {
	refund domain.RefundRequest
}

func (r CreatedRefund) Refund() domain.RefundRequest    { return r.refund }
func (r ProcessingRefund) Refund() domain.RefundRequest { return r.refund }
func (r CompletedRefund) Refund() domain.RefundRequest  { return r.refund }

// CreatedExchange: заказ на замену создан, но не завершён.
type CreatedExchange struct{ order domain.Order }

// CompletedExchange: заказ на замену завершён.
type CompletedExchange struct{ order domain.Order }

func (e CreatedExchange) Order() domain.Order   { return e.order }
func (e CompletedExchange) Order() domain.Order { return e.order }

// stageOrder задаёт порядок шагов для сравнения прогресса.
var stageOrder = []domain.SagaStage{
	domain.SagaStagePending,
	domain.SagaStageReturnCreated,
	domain.SagaStageReturnInspected,
	domain.SagaStageReturnApproved,
	domain.SagaStageReturnProcessed,
	domain.SagaStageReturnCompleted,
	domain.SagaStageRefundCreated,
	domain.SagaStageRefundProcessing,
	domain.SagaStageRefundCompleted,
	domain.SagaStageExchangeCreated,
	domain.SagaStageExchangeCompleted,
}

func stageIndex(stage domain.SagaStage) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}

// requiresReconciliation: сбой после approve оставляет на backend рассогласованное
// состояние (остатки/деньги), которое оператор должен разобрать вручную.
func requiresReconciliation(failed domain.SagaStage) bool {
	return stageIndex(failed) >= stageIndex(domain.SagaStageReturnProcessed)
}
