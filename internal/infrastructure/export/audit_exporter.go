package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/steiner385/MachShop-sub008/internal/application/port"
	"github.com/steiner385/MachShop-sub008/internal/domain/entity"
)

const (
	summarySheet = "Summary"
	stagesSheet  = "Stages"
	trailSheet   = "Audit Trail"

	timeLayout = "2006-01-02 15:04:05 MST"
)

// AuditExporter renders an instance's approval record as an Excel workbook:
// one sheet for the instance summary, one per-stage breakdown with its
// assignments, and one for the full audit trail. The workbook is built
// entirely from persisted state so it matches what an auditor would see in
// the database.
type AuditExporter struct {
	instanceRepo   port.InstanceRepository
	stageRepo      port.StageRepository
	assignmentRepo port.AssignmentRepository
	historyRepo    port.HistoryRepository
	logger         *zap.Logger
}

// NewAuditExporter creates a new audit exporter
func NewAuditExporter(
	instanceRepo port.InstanceRepository,
	stageRepo port.StageRepository,
	assignmentRepo port.AssignmentRepository,
	historyRepo port.HistoryRepository,
	logger *zap.Logger,
) *AuditExporter {
	return &AuditExporter{
		instanceRepo:   instanceRepo,
		stageRepo:      stageRepo,
		assignmentRepo: assignmentRepo,
		historyRepo:    historyRepo,
		logger:         logger,
	}
}

// Export writes the workbook for an instance to outputPath.
func (ex *AuditExporter) Export(ctx context.Context, instanceID int64, outputPath string) error {
	f, err := ex.Build(ctx, instanceID)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save audit workbook: %w", err)
	}

	ex.logger.Info("Audit workbook exported",
		zap.Int64("instance_id", instanceID),
		zap.String("output_path", outputPath))
	return nil
}

// Build assembles the workbook in memory. The caller owns closing the file.
func (ex *AuditExporter) Build(ctx context.Context, instanceID int64) (*excelize.File, error) {
	instance, err := ex.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance: %w", err)
	}
	stages, err := ex.stageRepo.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stages: %w", err)
	}
	events, err := ex.historyRepo.GetByInstanceID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	f := excelize.NewFile()
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(stagesSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create stages sheet: %w", err)
	}
	if _, err := f.NewSheet(trailSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create audit trail sheet: %w", err)
	}

	ex.fillSummary(f, instance)
	if err := ex.fillStages(ctx, f, stages); err != nil {
		f.Close()
		return nil, err
	}
	ex.fillTrail(f, events)

	return f, nil
}

func (ex *AuditExporter) fillSummary(f *excelize.File, instance *entity.WorkflowInstance) {
	rows := [][2]interface{}{
		{"Instance ID", instance.ID},
		{"Entity", instance.Ref().String()},
		{"Workflow Type", instance.WorkflowType},
		{"Definition ID", instance.DefinitionID},
		{"Status", instance.Status},
		{"Priority", instance.Priority},
		{"Impact Level", instance.ImpactLevel},
		{"Started By", instance.StartedBy},
		{"Started At", instance.StartedAt.Format(timeLayout)},
		{"Revision", instance.Revision},
	}
	if instance.CompletedAt != nil {
		rows = append(rows, [2]interface{}{"Completed At", instance.CompletedAt.Format(timeLayout)})
	}

	for i, row := range rows {
		ex.setCell(f, summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		ex.setCell(f, summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}
}

func (ex *AuditExporter) fillStages(ctx context.Context, f *excelize.File, stages []*entity.StageInstance) error {
	headers := []string{
		"Order", "Stage", "Status", "Outcome", "Approval Type", "Strategy",
		"Approver", "Role", "Type", "Group", "Action", "Comment", "Acted At", "Signature",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		ex.setCell(f, stagesSheet, cell, h)
	}

	row := 2
	for _, stage := range stages {
		assignments, err := ex.assignmentRepo.GetByStageInstanceID(ctx, stage.ID)
		if err != nil {
			return fmt.Errorf("failed to load assignments for stage %d: %w", stage.ID, err)
		}
		if len(assignments) == 0 {
			ex.writeStageRow(f, row, stage, nil)
			row++
			continue
		}
		for _, assignment := range assignments {
			ex.writeStageRow(f, row, stage, assignment)
			row++
		}
	}
	return nil
}

func (ex *AuditExporter) writeStageRow(f *excelize.File, row int, stage *entity.StageInstance, assignment *entity.Assignment) {
	values := []interface{}{
		stage.ExecutionOrder,
		stage.Name,
		stage.Status,
		stage.Outcome,
		stage.ApprovalType,
		stage.Strategy,
	}
	if assignment != nil {
		actedAt := ""
		if assignment.ActedAt != nil {
			actedAt = assignment.ActedAt.Format(timeLayout)
		}
		values = append(values,
			assignment.UserID,
			assignment.Role,
			assignment.Type,
			assignment.GroupName,
			assignment.Outcome,
			assignment.Comment,
			actedAt,
			assignment.SignatureRef,
		)
	} else {
		values = append(values, "", strings.Join(stage.RequiredRoles, ", "), "", "", "", "", "", stage.SignatureRef)
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		ex.setCell(f, stagesSheet, cell, v)
	}
}

func (ex *AuditExporter) fillTrail(f *excelize.File, events []*entity.HistoryEvent) {
	headers := []string{"Seq", "Occurred At", "Event", "Stage", "From", "To", "Actor", "Detail"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		ex.setCell(f, trailSheet, cell, h)
	}

	for i, evt := range events {
		values := []interface{}{
			evt.Seq,
			evt.OccurredAt.Format(timeLayout),
			evt.EventType,
			evt.StageNumber,
			evt.PreviousStatus,
			evt.NewStatus,
			evt.Actor,
			evt.Detail,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			ex.setCell(f, trailSheet, cell, v)
		}
	}
}

func (ex *AuditExporter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		ex.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}
